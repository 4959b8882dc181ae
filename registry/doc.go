// Package registry loads the two level mirror registry.
//
// The register is a git repository holding a JSON list of mirror groups.
// Every group points at another git repository whose repo-list names the
// repositories to mirror. Both files are read from working tree clones made
// inside a scratch workspace and accept JSON with comments.
//
// register (mirror-register.json):
//
//	[
//	  {"url": "https://git.example.com/team/repos.git", "prefix": "team", "responsible": "team@example.com"}
//	]
//
// repo-list (repo-list.json):
//
//	{
//	  "repositories": {
//	    "api": {"url": "https://github.com/example/api.git"}
//	  }
//	}
//
// The repository above is mirrored locally as "team-api".
package registry
