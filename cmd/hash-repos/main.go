// Command hash-repos prints one digest over the files of several git
// repositories, taken in argument order. Within a repository files are
// visited in byte-wise order of their slash-separated paths; .git is
// skipped.
//
//	hash-repos [flags] <localPath> <repoUrl1> [repoUrl2 ... repoUrlN]
package main

import (
	"xdao.co/nfa/artifact"
	"xdao.co/nfa/internal/hashcli"
)

var version = "dev"

func main() {
	hashcli.Main(hashcli.Command{
		Name:    "hash-repos",
		Type:    artifact.TypeRepo,
		RefName: "repoUrl",
		Version: version,
	})
}
