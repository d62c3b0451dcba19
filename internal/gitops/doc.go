// Package gitops implements the GitOps workflow engine behind ngen-gitops.
//
// It sequences local git commands and remote repository API calls into four
// operations (branch creation, YAML image update, pull request creation, pull
// request merge) and one composite Kubernetes deploy workflow chaining all
// four. Remote API access, credential resolution, and notifications are
// consumed through interfaces so the engine stays independent of the hosting
// service.
package gitops
