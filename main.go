package main

import (
	"github.com/turtlemonvh/loopstore/command"
)

var (
	VERSION string
)

func main() {
	command.Run(VERSION)
}
