package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/inconshreveable/log15"
)

type globalConfig struct {
	Engine   string `long:"engine" short:"e" required:"true" env:"OBJECTSTORE_ENGINE" description:"Storage engine: mem://, badger://<dir>, bolt://<file>, or a bare path"`
	LogLevel string `long:"log.level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
}

var Config = new(globalConfig)

func main() {
	parser := flags.NewParser(Config, flags.Default)
	parser.LongDescription = `objectstore inspects and maintains versioned object store databases.

	See --help pages of each sub-command for documentation.
	`
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		lvl, err := log.LvlFromString(Config.LogLevel)
		if err != nil {
			return err
		}
		log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat())))
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	mustAddCmd(parser, "databases", "List databases and their versions", "", &cmdDatabases{})
	mustAddCmd(parser, "dump", "Dump the records of a database as JSON lines", `
Write every record of a database (or of one --store) to stdout, one JSON object
per line with the fields "store", "key" and "value".
`, &cmdDump{})
	mustAddCmd(parser, "load", "Load JSON lines into a store", `
Read JSON objects from stdin, one per line, and put them into --store. Each line
has a "value" field and, for stores with out-of-line keys, a "key" field. The
database and store must already exist.
`, &cmdLoad{})
	mustAddCmd(parser, "delete", "Delete a database", "", &cmdDelete{})
	mustAddCmd(parser, "vacuum", "Run storage engine garbage collection", "", &cmdVacuum{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustAddCmd(parser *flags.Parser, name, short, long string, cfg interface{}) {
	if _, err := parser.AddCommand(name, short, long, cfg); err != nil {
		log.Crit("failed to add command", "name", name, "err", err)
		os.Exit(1)
	}
}
