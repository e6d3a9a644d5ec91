// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kraklabs/openviking/internal/errors"
)

// bashCompletionTemplate is the bash completion script for viking.
const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for viking (OpenViking context engine)
# Installation:
#   source <(viking completion bash)
#   Or add to ~/.bashrc:
#   echo 'source <(viking completion bash)' >> ~/.bashrc

_viking_completion() {
    local cur prev commands
    commands="init add skill find grep glob ls tree stat cat write rm mv abstract overview session status queue wait sweep reset completion"

    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    # Global flags
    if [[ ${cur} == -* ]] ; then
        COMPREPLY=( $(compgen -W "--workspace --json -q --no-color --verbose --version" -- ${cur}) )
        return 0
    fi

    # First argument: complete commands
    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    # Command-specific completion
    local cmd="${COMP_WORDS[1]}"
    case "${cmd}" in
        add)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--reason --wait --trace --timeout" -- ${cur}) )
            fi
            ;;
        find)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--target --limit --threshold --trace" -- ${cur}) )
            fi
            ;;
        grep)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--target --ignore-case --max-results" -- ${cur}) )
            fi
            ;;
        session)
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "create add-message commit delete list" -- ${cur}) )
            fi
            ;;
        queue)
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "ls requeue prune" -- ${cur}) )
            elif [ $COMP_CWORD -eq 3 ]; then
                COMPREPLY=( $(compgen -W "semantic embedding" -- ${cur}) )
            fi
            ;;
        wait)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--timeout" -- ${cur}) )
            fi
            ;;
        reset)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--yes" -- ${cur}) )
            fi
            ;;
        completion)
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            fi
            ;;
    esac
}

complete -F _viking_completion viking
`

// zshCompletionTemplate is the zsh completion script for viking.
const zshCompletionTemplate = `#compdef viking

# Zsh completion script for viking (OpenViking context engine)
# Installation:
#   1. Ensure compinit is loaded (add to ~/.zshrc if not present):
#      autoload -U compinit; compinit
#   2. Save this script to a directory in your fpath:
#      viking completion zsh > "${fpath[1]}/_viking"
#   3. Reload completions:
#      rm -f ~/.zcompdump; compinit

_viking() {
    local -a commands
    commands=(
        'init:Create and initialise a workspace'
        'add:Ingest a document, directory or URL'
        'skill:Store a distilled skill'
        'find:Semantic search over the tree'
        'grep:Literal search over leaf contents'
        'glob:Enumerate nodes matching a pattern'
        'ls:List children of a directory'
        'tree:Nested listing of a subtree'
        'stat:Show node metadata'
        'cat:Print file content'
        'write:Write file content'
        'rm:Remove a resource'
        'mv:Move a resource'
        'abstract:Print an L1 summary'
        'overview:Print an L0 navigation map'
        'session:Manage sessions'
        'status:Show workspace status'
        'queue:Inspect the processing queues'
        'wait:Drain the processing queues'
        'sweep:Delete expired scratch trees'
        'reset:Delete all workspace data'
        'completion:Generate shell completion script'
    )

    _arguments -C \
        '(- *)--version[Show version and exit]' \
        '--workspace[Workspace directory]:directory:_directories' \
        '--json[Emit machine-readable JSON envelopes]' \
        '-q[Suppress progress and informational output]' \
        '--no-color[Disable coloured output]' \
        '--verbose[Log verbosity]:level:' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                add)
                    _arguments \
                        '--reason[Why this resource is being added]:reason:' \
                        '--wait[Process the queues before returning]' \
                        '--trace[Include the request trace]' \
                        '--timeout[Processing timeout]:duration:' \
                        '1:path or url:_files'
                    ;;
                find)
                    _arguments \
                        '--target[Scope to a subtree URI]:uri:' \
                        '--limit[Maximum results]:count:' \
                        '--threshold[Minimum score]:score:' \
                        '--trace[Include the request trace]' \
                        '1:query:'
                    ;;
                session)
                    _arguments '1:subcommand:(create add-message commit delete list)'
                    ;;
                queue)
                    _arguments '1:subcommand:(ls requeue prune)' '2:queue:(semantic embedding)'
                    ;;
                wait)
                    _arguments '--timeout[Give up after this long]:duration:'
                    ;;
                reset)
                    _arguments '--yes[Confirm the reset]'
                    ;;
                completion)
                    _arguments '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_viking
`

// fishCompletionTemplate is the fish completion script for viking.
const fishCompletionTemplate = `# Fish completion script for viking (OpenViking context engine)
# Installation:
#   1. Load completions for current session:
#      viking completion fish | source
#   2. Install permanently:
#      viking completion fish > ~/.config/fish/completions/viking.fish

# Commands
complete -c viking -f -n "__fish_use_subcommand" -a "init" -d "Create and initialise a workspace"
complete -c viking -f -n "__fish_use_subcommand" -a "add" -d "Ingest a document, directory or URL"
complete -c viking -f -n "__fish_use_subcommand" -a "skill" -d "Store a distilled skill"
complete -c viking -f -n "__fish_use_subcommand" -a "find" -d "Semantic search over the tree"
complete -c viking -f -n "__fish_use_subcommand" -a "grep" -d "Literal search over leaf contents"
complete -c viking -f -n "__fish_use_subcommand" -a "glob" -d "Enumerate nodes matching a pattern"
complete -c viking -f -n "__fish_use_subcommand" -a "ls" -d "List children of a directory"
complete -c viking -f -n "__fish_use_subcommand" -a "tree" -d "Nested listing of a subtree"
complete -c viking -f -n "__fish_use_subcommand" -a "stat" -d "Show node metadata"
complete -c viking -f -n "__fish_use_subcommand" -a "cat" -d "Print file content"
complete -c viking -f -n "__fish_use_subcommand" -a "write" -d "Write file content"
complete -c viking -f -n "__fish_use_subcommand" -a "rm" -d "Remove a resource"
complete -c viking -f -n "__fish_use_subcommand" -a "mv" -d "Move a resource"
complete -c viking -f -n "__fish_use_subcommand" -a "abstract" -d "Print an L1 summary"
complete -c viking -f -n "__fish_use_subcommand" -a "overview" -d "Print an L0 navigation map"
complete -c viking -f -n "__fish_use_subcommand" -a "session" -d "Manage sessions"
complete -c viking -f -n "__fish_use_subcommand" -a "status" -d "Show workspace status"
complete -c viking -f -n "__fish_use_subcommand" -a "queue" -d "Inspect the processing queues"
complete -c viking -f -n "__fish_use_subcommand" -a "wait" -d "Drain the processing queues"
complete -c viking -f -n "__fish_use_subcommand" -a "sweep" -d "Delete expired scratch trees"
complete -c viking -f -n "__fish_use_subcommand" -a "reset" -d "Delete all workspace data (destructive!)"
complete -c viking -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

# Global flags
complete -c viking -l version -d "Show version and exit"
complete -c viking -l workspace -d "Workspace directory" -r
complete -c viking -l json -d "Emit machine-readable JSON envelopes"
complete -c viking -s q -d "Suppress progress and informational output"
complete -c viking -l no-color -d "Disable coloured output"
complete -c viking -l verbose -d "Log verbosity" -r

# add command flags
complete -c viking -n "__fish_seen_subcommand_from add" -s r -l reason -d "Why this resource is being added" -r
complete -c viking -n "__fish_seen_subcommand_from add" -s w -l wait -d "Process the queues before returning"
complete -c viking -n "__fish_seen_subcommand_from add" -l trace -d "Include the request trace"
complete -c viking -n "__fish_seen_subcommand_from add" -l timeout -d "Processing timeout" -r

# find command flags
complete -c viking -n "__fish_seen_subcommand_from find" -s t -l target -d "Scope to a subtree URI" -r
complete -c viking -n "__fish_seen_subcommand_from find" -s n -l limit -d "Maximum results" -r
complete -c viking -n "__fish_seen_subcommand_from find" -l threshold -d "Minimum score" -r
complete -c viking -n "__fish_seen_subcommand_from find" -l trace -d "Include the request trace"

# session subcommands
complete -c viking -n "__fish_seen_subcommand_from session" -f -a "create add-message commit delete list"

# queue subcommands
complete -c viking -n "__fish_seen_subcommand_from queue" -f -a "ls requeue prune"

# wait command flags
complete -c viking -n "__fish_seen_subcommand_from wait" -s t -l timeout -d "Give up after this long" -r

# reset command flags
complete -c viking -n "__fish_seen_subcommand_from reset" -l yes -d "Confirm the reset"

# completion command arguments
complete -c viking -n "__fish_seen_subcommand_from completion" -f -a "bash" -d "Generate bash completion script"
complete -c viking -n "__fish_seen_subcommand_from completion" -f -a "zsh" -d "Generate zsh completion script"
complete -c viking -n "__fish_seen_subcommand_from completion" -f -a "fish" -d "Generate fish completion script"
`

// runCompletion executes the 'completion' command, generating
// shell-specific completion scripts for bash, zsh, or fish.
//
// Usage:
//
//	viking completion [bash|zsh|fish]
//
// Examples:
//
//	viking completion bash                      Output bash completion script
//	source <(viking completion bash)            Load completions in current shell
//	viking completion fish | source             Load fish completions
func runCompletion(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: viking completion <shell>

Description:
  Generate shell completion scripts for bash, zsh, or fish.

Arguments:
  shell    Shell type: bash, zsh, or fish (required)

Installation:

Bash:
  # Load completions in current shell
  source <(viking completion bash)

  # Load completions for each session (add to ~/.bashrc)
  echo 'source <(viking completion bash)' >> ~/.bashrc

Zsh:
  # Enable completion if not already enabled (add to ~/.zshrc)
  echo "autoload -U compinit; compinit" >> ~/.zshrc

  # Install completions permanently
  viking completion zsh > "${fpath[1]}/_viking"

Fish:
  # Load completions in current shell
  viking completion fish | source

  # Install completions permanently
  viking completion fish > ~/.config/fish/completions/viking.fish

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		errors.FatalError(errors.InvalidArgument(
			"the completion command requires exactly one argument: the shell name",
		).WithFix("run 'viking completion bash', 'viking completion zsh', or 'viking completion fish'"), globals.JSON)
	}

	shell := fs.Arg(0)

	switch shell {
	case "bash":
		fmt.Print(bashCompletionTemplate)
	case "zsh":
		fmt.Print(zshCompletionTemplate)
	case "fish":
		fmt.Print(fishCompletionTemplate)
	default:
		errors.FatalError(errors.InvalidArgument(
			"shell %q is not supported; valid options: bash, zsh, fish", shell,
		).WithFix("run 'viking completion bash', 'viking completion zsh', or 'viking completion fish'"), globals.JSON)
	}
}
