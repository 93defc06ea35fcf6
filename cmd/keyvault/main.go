package main

import (
	"fmt"
	"os"

	"github.com/ncobase/keyvault/cmd/keyvault/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
