package main

import "github.com/andresmejia3/aist/cmd"

func main() {
	cmd.Execute()
}
