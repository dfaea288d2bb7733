/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/gmaffy/goctar/cmd"

func main() {
	cmd.Execute()
}
