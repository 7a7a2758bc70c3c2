// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

type Id int

const (
	ProfileNotFoundId Id = iota + 1
	ProfileInvalidId
	DependencyCycleId
	BuildFailedId
	TargetExistsId
	ConfigLoadFailedId
	StoreCorruptId
	SourceFetchFailedId
	LddNotFoundId
	ShellNotFoundId
)

type MarkdownMsg string

type Issue struct {
	id    Id          // ID used to lookup the issue
	mdMsg MarkdownMsg // Markdown text that will be rendered
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) Render(stylePath string) (string, error) {
	return render(string(i.mdMsg), stylePath)
}

var (
	render = glamour.Render

	profileNotFoundIssue = &Issue{
		id: ProfileNotFoundId,
		mdMsg: `
# Profile not found!

hit could not read the profile file you asked for.

## Things you can try:
- Check the path passed with ` + "`-p`" + ` (the default is ` + "`default.yaml`" + ` in the current directory)
- Profile files must end in ` + "`.yaml`" + `:
~~~
$ hit build -p myprofile.yaml
~~~`,
	}

	profileInvalidIssue = &Issue{
		id: ProfileInvalidId,
		mdMsg: `
# Invalid profile!

The profile could not be loaded. The message above names the package and field at fault.

## Common causes:
- A package name is declared twice, or is the reserved name ` + "`profile`" + `
- A dependency names a package the profile does not declare
- A source ` + "`key`" + ` is not of the form ` + "`sha256:<64 hex digits>`" + `
- The ` + "`build`" + ` script is empty or is not valid shell

## Example package:
~~~yaml
packages:
  - name: zlib
    sources:
      - url: https://zlib.net/zlib-1.3.tar.gz
        key: sha256:...
    build: |
      ./configure --prefix="$ARTIFACT"
      make -j"$JOBS" install
~~~`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle detected!

The packages in your profile depend on each other in a loop, so no build order exists.

## Things you can try:
- Follow the cycle printed above and remove one of its dependencies
- Split a package that both provides and needs the same component`,
	}

	buildFailedIssue = &Issue{
		id: BuildFailedId,
		mdMsg: `
# Build failed!

A package recipe exited with an error. Nothing was published for it, and the builds
that depend on it were not started.

## Things you can try:
- Read the build log printed above
- Keep the build directory for inspection and retry:
~~~
$ hit build -k error
~~~
- Prepare the build directory without running the recipe:
~~~
$ hit bdir <package> /tmp/work
~~~`,
	}

	targetExistsIssue = &Issue{
		id: TargetExistsId,
		mdMsg: `
# Target already exists!

hit will not write into an existing directory.

## Things you can try:
- Pass ` + "`-f`" + ` to remove the target first
- Choose another target directory`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Your hit configuration file could not be loaded.

## Things you can try:
- Check the CUE syntax of your config file
- Show where hit looks for it:
~~~
$ hit config path
~~~
- Regenerate a default configuration:
~~~
$ hit config init
~~~`,
	}

	storeCorruptIssue = &Issue{
		id: StoreCorruptId,
		mdMsg: `
# Incomplete artifact found!

An artifact directory exists without its completion marker, usually after a crash
or an interrupted copy. hit treats it as not built.

## Things you can try:
- Run the build again; the incomplete directory is moved aside and rebuilt
- Check free disk space on the artifact root`,
	}

	sourceFetchFailedIssue = &Issue{
		id: SourceFetchFailedId,
		mdMsg: `
# Source fetch failed!

A package source could not be downloaded, or its content does not match its key.

## Things you can try:
- Check your network connection and the source URL
- If the upstream archive changed, update the ` + "`key`" + ` in your profile
- Relative URLs are resolved against the profile directory`,
	}

	lddNotFoundIssue = &Issue{
		id: LddNotFoundId,
		mdMsg: `
# ldd not found!

` + "`hit check-libs`" + ` inspects shared libraries with ` + "`ldd`" + `, which is not on your PATH.

## Things you can try:
- Install your distribution's libc tools (glibc-common, libc-bin)
- check-libs is only supported on Linux`,
	}

	shellNotFoundIssue = &Issue{
		id: ShellNotFoundId,
		mdMsg: `
# Shell not found!

The native runtime runs recipes with the host ` + "`/bin/sh`" + `, which could not be started.

## Things you can try:
- Use the embedded interpreter instead:
~~~cue
build: runtime: "virtual"
~~~`,
	}

	issues = map[Id]*Issue{
		profileNotFoundIssue.Id():   profileNotFoundIssue,
		profileInvalidIssue.Id():    profileInvalidIssue,
		dependencyCycleIssue.Id():   dependencyCycleIssue,
		buildFailedIssue.Id():       buildFailedIssue,
		targetExistsIssue.Id():      targetExistsIssue,
		configLoadFailedIssue.Id():  configLoadFailedIssue,
		storeCorruptIssue.Id():      storeCorruptIssue,
		sourceFetchFailedIssue.Id(): sourceFetchFailedIssue,
		lddNotFoundIssue.Id():       lddNotFoundIssue,
		shellNotFoundIssue.Id():     shellNotFoundIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
