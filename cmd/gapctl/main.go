// gapctl is the admin CLI client for gapd.
package main

import "github.com/dantte-lp/gapcore/cmd/gapctl/commands"

func main() {
	commands.Execute()
}
