package main

import "github.com/thiagofdso/chat-cloner/internal/cli"

func main() {
	cli.Execute()
}
