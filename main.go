package main

import "github.com/ValentinKolb/hcdkv/cmd"

func main() {
	cmd.Execute()
}
