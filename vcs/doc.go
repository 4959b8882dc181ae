// Package vcs runs the git operations needed to mirror repositories.
//
// Two backends implement [Client]: [Exec] shells out to the git binary and
// [GoGit] performs the same operations in process with go-git.
// Both take a slog reference for logging and print command traces at 'trace' level.
//
// Example:
//
//	client, err := vcs.NewExec(vcs.Options{Proxy: "http://proxy:3128"}, logger)
//	if err != nil {
//		panic(err)
//	}
//	defer client.Close()
//
//	// registry repositories are read through a working tree clone without proxy
//	err = client.CloneWorkingTree(ctx, "https://git.example.com/org/register.git", dst, false)
package vcs
