package main

import "github.com/MeKo-Tech/craftocr/cmd/craftocr/cmd"

func main() {
	cmd.Execute()
}
