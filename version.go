///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - version.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"
	"io"
	"regexp"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	gitSHARe         = regexp.MustCompile("^[0-9a-f]{40}$")
	nameReplacements = strings.NewReplacer(
		"kernel.org/pub/linux/libs/security", "...",
		"github.com/", "",
		"gitlab.com/", "",
	)
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func trimVersion(version, sum string) string {
	if sum == "" {
		before, _, found := strings.Cut(version, "-")
		if found {
			return before
		}
	}

	return version
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func moduleVersion(version, sum string) string {
	v := trimVersion(version, sum)

	if strings.Contains(version, "+dirty") {
		v += "*"
	}

	return v
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// versionString describes this build, ie. "Floxy Entrypoint v1.2.0 (2025-Oct-07 g6fcfbc9)
// [linux/amd64]".
func versionString() string {
	s := "Floxy Entrypoint"

	info, ok := debug.ReadBuildInfo()
	if ok {
		if v := moduleVersion(info.Main.Version, info.Main.Sum); v != "" && v != "(devel)" {
			s += " " + v
		}

		var date, commit string

		var modified bool

		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.time":
				date = setting.Value

			case "vcs.revision":
				commit = setting.Value

			case "vcs.modified":
				modified = setting.Value == "true"
			}
		}

		if date != "" && commit != "" {
			t, err := time.Parse(time.RFC3339, date)
			if err == nil {
				date = t.Format("2006-Jan-02")
			}

			if gitSHARe.MatchString(commit) {
				commit = commit[:7]
			}

			if modified {
				commit += "+"
			}

			s += fmt.Sprintf(" (%s g%s)", date, commit)
		}
	}

	return s + fmt.Sprintf(" [%s/%s]", runtime.GOOS, runtime.GOARCH)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func printVersionTable(w io.Writer) {
	type row struct{ Name, Version string }

	var rows []row

	if info, ok := debug.ReadBuildInfo(); ok {
		rows = append(rows, row{
			Name:    nameReplacements.Replace(info.Main.Path),
			Version: moduleVersion(info.Main.Version, info.Main.Sum),
		})

		for _, dep := range info.Deps {
			rows = append(rows, row{
				Name:    nameReplacements.Replace(dep.Path),
				Version: moduleVersion(dep.Version, dep.Sum),
			})
		}
	}

	rows = append(rows, row{
		Name:    fmt.Sprintf("Go compiler (%s)", runtime.Compiler),
		Version: runtime.Version(),
	})

	maxName, maxVer := utf8.RuneCountInString("Component"), utf8.RuneCountInString("Version")

	for _, r := range rows {
		maxName = max(maxName, utf8.RuneCountInString(r.Name))
		maxVer = max(maxVer, utf8.RuneCountInString(r.Version))
	}

	border := fmt.Sprintf("+=%s=+=%s=+\n",
		strings.Repeat("=", maxName), strings.Repeat("=", maxVer))

	fmt.Fprint(w, border)
	fmt.Fprintf(w, "| %-*s | %-*s |\n", maxName, "Component", maxVer, "Version")
	fmt.Fprint(w, border)

	for _, r := range rows {
		fmt.Fprintf(w, "| %-*s | %-*s |\n", maxName, r.Name, maxVer, r.Version)
	}

	fmt.Fprint(w, border)
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
