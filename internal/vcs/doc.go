// Package vcs lands generated fixes in the local git repository.
//
// Every fix goes onto a fresh branch named fix/<slug>-<timestamp> so the
// default branch is never touched. A run that produces no diff deletes
// its branch and reports failure rather than leaving an empty commit.
package vcs
