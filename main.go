package main

import "github.com/ehn-dcc-development/ehc-verify/cmd"

func main() {
	cmd.Execute()
}
