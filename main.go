package main

import "github.com/tanq16/refetch/cmd"

func main() {
	cmd.Execute()
}
