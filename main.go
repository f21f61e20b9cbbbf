/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/azure/enterprise-policy-linker/cmd"

func main() {
	cmd.Execute()
}
