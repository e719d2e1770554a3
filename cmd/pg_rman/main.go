// Command pg_rman is the CLI entrypoint: verb dispatch, DATE parsing, and
// exit-code mapping around the backup/restore/catalog packages.
package main

import (
	"fmt"
	"os"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/rmanlog"
)

const help = `
*****************************************************************
* pg_rman - online incremental physical backup and PITR manager *
*****************************************************************
Usage:
  pg_rman init     -B catalog-path -D pgdata
  pg_rman backup   -B catalog-path -D pgdata [-b FULL|INCREMENTAL|ARCHIVE]
  pg_rman restore  -B catalog-path -D pgdata [recovery-target flags]
  pg_rman show     [detail] [DATE [DATE]]
  pg_rman validate [DATE [DATE]]
  pg_rman delete   DATE [--force]
  pg_rman purge
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, help)
		return rmanerr.KindArgs.ExitCode()
	}

	verb, rest := args[0], args[1:]
	var err error
	switch verb {
	case "init":
		err = runInit(rest)
	case "backup":
		err = runBackup(rest)
	case "restore":
		err = runRestore(rest)
	case "show":
		err = runShow(rest)
	case "validate":
		err = runValidate(rest)
	case "delete":
		err = runDelete(rest)
	case "purge":
		err = runPurge(rest)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, help)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "pg_rman: unknown command %q\n\n%s", verb, help)
		return rmanerr.KindArgs.ExitCode()
	}

	if err == nil {
		return 0
	}
	rmanlog.ReportError(err)
	return rmanerr.KindOf(err).ExitCode()
}
