// Command hash-files prints one digest over the bytes of several remote
// files, taken in argument order.
//
//	hash-files [flags] <localPath> <uri1> [uri2 ... uriN]
package main

import (
	"xdao.co/nfa/artifact"
	"xdao.co/nfa/internal/hashcli"
)

var version = "dev"

func main() {
	hashcli.Main(hashcli.Command{
		Name:    "hash-files",
		Type:    artifact.TypeFile,
		RefName: "uri",
		Version: version,
	})
}
