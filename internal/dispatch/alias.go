package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	aliasDirectoryNameConstant          = ".ngenctl"
	aliasFileNameConstant               = "alias.json"
	aliasDirectoryPermissionsConstant   = 0o755
	aliasFilePermissionsConstant        = 0o644
	aliasNameRequiredMessageConstant    = "alias name must be provided"
	aliasTargetRequiredMessageConstant  = "alias target must be provided"
	aliasNotFoundTemplateConstant       = "alias %q: %w"
	aliasNotFoundMessageConstant        = "alias not defined"
	aliasCycleTemplateConstant          = "alias %q: %w"
	aliasCycleMessageConstant           = "alias resolution cycle detected"
	aliasFileReadErrorTemplateConstant  = "failed to read alias file %s: %w"
	aliasFileParseErrorTemplateConstant = "failed to parse alias file %s: %w"
	aliasFileWriteErrorTemplateConstant = "failed to write alias file %s: %w"
)

// Alias store sentinels.
var (
	// ErrAliasNameRequired indicates an alias operation was requested without a name.
	ErrAliasNameRequired = errors.New(aliasNameRequiredMessageConstant)
	// ErrAliasTargetRequired indicates an alias was set without a target.
	ErrAliasTargetRequired = errors.New(aliasTargetRequiredMessageConstant)
	// ErrAliasNotFound indicates a removal or resolution referenced an undefined alias.
	ErrAliasNotFound = errors.New(aliasNotFoundMessageConstant)
	// ErrAliasCycle indicates nested alias resolution revisited a name.
	ErrAliasCycle = errors.New(aliasCycleMessageConstant)
)

// AliasStore persists the name to command mapping as a JSON object.
type AliasStore struct {
	path string
}

// NewAliasStore constructs an AliasStore at an explicit file path.
func NewAliasStore(path string) AliasStore {
	return AliasStore{path: path}
}

// DefaultAliasStore locates the alias file under the user home directory.
func DefaultAliasStore() (AliasStore, error) {
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil {
		return AliasStore{}, homeError
	}
	return AliasStore{path: filepath.Join(homeDirectory, aliasDirectoryNameConstant, aliasFileNameConstant)}, nil
}

// Path returns the backing file path.
func (store AliasStore) Path() string {
	return store.path
}

// Load reads the alias mapping. A missing file yields an empty mapping.
func (store AliasStore) Load() (map[string]string, error) {
	fileContent, readError := os.ReadFile(store.path)
	if readError != nil {
		if os.IsNotExist(readError) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf(aliasFileReadErrorTemplateConstant, store.path, readError)
	}

	aliases := map[string]string{}
	if parseError := json.Unmarshal(fileContent, &aliases); parseError != nil {
		return nil, fmt.Errorf(aliasFileParseErrorTemplateConstant, store.path, parseError)
	}
	return aliases, nil
}

// Set stores or replaces one alias.
func (store AliasStore) Set(aliasName string, aliasTarget string) error {
	trimmedName := strings.TrimSpace(aliasName)
	if len(trimmedName) == 0 {
		return ErrAliasNameRequired
	}
	trimmedTarget := strings.TrimSpace(aliasTarget)
	if len(trimmedTarget) == 0 {
		return ErrAliasTargetRequired
	}

	aliases, loadError := store.Load()
	if loadError != nil {
		return loadError
	}
	aliases[trimmedName] = trimmedTarget
	return store.save(aliases)
}

// Remove deletes one alias.
func (store AliasStore) Remove(aliasName string) error {
	aliases, loadError := store.Load()
	if loadError != nil {
		return loadError
	}
	if _, defined := aliases[aliasName]; !defined {
		return fmt.Errorf(aliasNotFoundTemplateConstant, aliasName, ErrAliasNotFound)
	}
	delete(aliases, aliasName)
	return store.save(aliases)
}

// List returns the defined aliases sorted by name.
func (store AliasStore) List() ([]AliasEntry, error) {
	aliases, loadError := store.Load()
	if loadError != nil {
		return nil, loadError
	}

	aliasEntries := make([]AliasEntry, 0, len(aliases))
	for aliasName, aliasTarget := range aliases {
		aliasEntries = append(aliasEntries, AliasEntry{Name: aliasName, Target: aliasTarget})
	}
	sort.Slice(aliasEntries, func(firstIndex, secondIndex int) bool {
		return aliasEntries[firstIndex].Name < aliasEntries[secondIndex].Name
	})
	return aliasEntries, nil
}

// AliasEntry is one name to target pair of the alias listing.
type AliasEntry struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

// Resolve follows alias definitions, including aliases pointing at other aliases,
// until a non-alias command is reached. The first word of a target participates in
// resolution; remaining words accumulate as arguments.
func (store AliasStore) Resolve(commandName string, commandArguments []string) (string, []string, error) {
	aliases, loadError := store.Load()
	if loadError != nil {
		return "", nil, loadError
	}

	resolvedName := commandName
	resolvedArguments := append([]string{}, commandArguments...)
	visitedNames := map[string]bool{}

	for {
		aliasTarget, defined := aliases[resolvedName]
		if !defined {
			return resolvedName, resolvedArguments, nil
		}
		if visitedNames[resolvedName] {
			return "", nil, fmt.Errorf(aliasCycleTemplateConstant, resolvedName, ErrAliasCycle)
		}
		visitedNames[resolvedName] = true

		targetWords := strings.Fields(aliasTarget)
		if len(targetWords) == 0 {
			return "", nil, fmt.Errorf(aliasNotFoundTemplateConstant, resolvedName, ErrAliasTargetRequired)
		}
		resolvedName = targetWords[0]
		resolvedArguments = append(append([]string{}, targetWords[1:]...), resolvedArguments...)
	}
}

func (store AliasStore) save(aliases map[string]string) error {
	if directoryError := os.MkdirAll(filepath.Dir(store.path), aliasDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(aliasFileWriteErrorTemplateConstant, store.path, directoryError)
	}

	encodedAliases, encodeError := json.MarshalIndent(aliases, "", "  ")
	if encodeError != nil {
		return fmt.Errorf(aliasFileWriteErrorTemplateConstant, store.path, encodeError)
	}

	if writeError := os.WriteFile(store.path, encodedAliases, aliasFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(aliasFileWriteErrorTemplateConstant, store.path, writeError)
	}
	return nil
}
