package main

import "github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/cmd"

func main() {
	cmd.Execute()
}
