package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("ошибка:"), err)
		os.Exit(1)
	}
}
