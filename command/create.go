package command

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turtlemonvh/loopstore/lib/database"
	"github.com/turtlemonvh/loopstore/lib/loop"
)

/*

Emit or apply the DDL for a loop table. By default the statements are printed
so they can be piped into a database shell; --execute applies them to the
configured sqlite database directly.

*/

var createConf CreateConf
var createCmd = &cobra.Command{
	Use:   "create-table <loop>",
	Short: "Emit (or apply) CREATE TABLE statements for a loop",
	Run: func(cmd *cobra.Command, args []string) {
		InitializeConfig()
		viper.Set("logLevel", "error")
		InitializeLogging()
		if len(args) < 1 {
			fmt.Println("ERROR: Missing required positional argument 'loop'")
			cmd.Usage()
			os.Exit(1)
		}
		createConf.CreateTable(args[0])
	},
}

type CreateConf struct {
	KeyType string
	IDType  string
	Engine  string
	Dialect string
	Execute bool
}

func init() {
	createCmd.Flags().StringVar(&createConf.KeyType, "key-type", "", "Key type: integer or text (default from config)")
	createCmd.Flags().StringVar(&createConf.IDType, "id-type", "", "Override the id column type, e.g. 'VARCHAR(64)'")
	createCmd.Flags().StringVar(&createConf.Engine, "engine", "", "MySQL storage engine (default InnoDB)")
	createCmd.Flags().StringVar(&createConf.Dialect, "dialect", "sqlite", "SQL dialect: sqlite or mysql")
	createCmd.Flags().BoolVar(&createConf.Execute, "execute", false, "Apply the statements to the configured database")
	RootCmd.AddCommand(createCmd)
}

func (c *CreateConf) CreateTable(name string) {
	keyType := loop.KeyType(c.KeyType)
	if c.KeyType == "" {
		keyType = loop.KeyType(viper.GetString("loop.key_type"))
	}

	if c.Execute {
		db, err := database.Open(viper.GetString("database"))
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		l, err := loop.New(db, loop.Config{Name: name, KeyType: keyType})
		if err != nil {
			log.Fatal(err)
		}
		if err := l.Create(context.Background()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("created loop table %s in %s\n", name, viper.GetString("database"))
		return
	}

	stmts, err := loop.CreateSQL(name, keyType, &loop.SchemaOptions{
		IDType:  c.IDType,
		Engine:  c.Engine,
		Dialect: loop.Dialect(c.Dialect),
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, stmt := range stmts {
		fmt.Println(stmt + ";")
	}
}
