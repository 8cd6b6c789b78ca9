// Package config holds the orchestrator's external configuration: the
// initialization options an LSP client sends, plus an optional on-disk
// workspace descriptor layered on top.
//
// Grounded on spec.md §6 and original_source's ModuleManger.cpp (multi-
// module / combined-module fields), with the teacher's own pattern of
// JSON-decoding LSP initializationOptions into a typed struct
// (langserver/internal/cache/view.go) and, for an optional on-disk file,
// github.com/BurntSushi/toml as used for struct-tagged config loading
// elsewhere in the example pack.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ModuleEntry describes one module participating in the workspace, as
// found in the multiModule map of the LSP initializationOptions.
type ModuleEntry struct {
	Name                string            `json:"name" toml:"name"`
	SrcPath             string            `json:"srcPath,omitempty" toml:"src_path,omitempty"`
	CommonSpecificPaths []string          `json:"commonSpecificPaths,omitempty" toml:"common_specific_paths,omitempty"`
	Combined            bool              `json:"combined,omitempty" toml:"combined,omitempty"`
	Requires            []string          `json:"requires,omitempty" toml:"requires,omitempty"`
	PackagesRequires    map[string]string `json:"packagesRequires,omitempty" toml:"packages_requires,omitempty"`
}

// ConditionCompile holds the condition-compile options recognized at
// initialization: a global key/value table, per-module overrides,
// per-package overrides, and extra search paths for `@when` macro
// resolution.
type ConditionCompile struct {
	PassedWhenKeyValue     map[string]string            `json:"passedWhenKeyValue,omitempty" toml:"passed_when_key_value,omitempty"`
	ModuleCondition        map[string]map[string]string `json:"moduleCondition,omitempty" toml:"module_condition,omitempty"`
	SinglePackageCondition map[string]map[string]string `json:"singlePackageCondition,omitempty" toml:"single_package_condition,omitempty"`
	PassedWhenCfgPaths     []string                      `json:"passedWhenCfgPaths,omitempty" toml:"passed_when_cfg_paths,omitempty"`
}

// PlatformFlags gates behavior that differs between hosts and between
// production and test runs.
type PlatformFlags struct {
	IsDeveco          bool `json:"isDeveco,omitempty" toml:"is_deveco,omitempty"`
	Test              bool `json:"test,omitempty" toml:"test,omitempty"`
	DisableAutoImport bool `json:"disableAutoImport,omitempty" toml:"disable_auto_import,omitempty"`
}

// Config is the full set of options recognized at initialization
// (spec.md §6). Fields default to their zero value when absent from the
// client-sent initializationOptions or an on-disk descriptor.
type Config struct {
	ModulesHome string                 `json:"modulesHome,omitempty" toml:"modules_home,omitempty"`
	StdLibPath  string                 `json:"stdLibPath,omitempty" toml:"std_lib_path,omitempty"`
	CachePath   string                 `json:"cachePath,omitempty" toml:"cache_path,omitempty"`
	MultiModule map[string]ModuleEntry `json:"multiModule,omitempty" toml:"multi_module,omitempty"`
	TargetLib   string                 `json:"targetLib,omitempty" toml:"target_lib,omitempty"`

	Platform  PlatformFlags    `json:"platform,omitempty" toml:"platform,omitempty"`
	Condition ConditionCompile `json:"conditionCompile,omitempty" toml:"condition_compile,omitempty"`

	// GCInterval, expressed as a cron(v3) spec string, drives the
	// orchestrator's persisted-cache garbage collector. Empty means the
	// default ("every 10 minutes") applies; ignored entirely when
	// Platform.Test is set.
	GCInterval string `json:"gcInterval,omitempty" toml:"gc_interval,omitempty"`
}

// DefaultGCInterval is used when Config.GCInterval is unset.
const DefaultGCInterval = "@every 10m"

// RuntimePath and CangjieHome/CangjiePath are read from the environment
// rather than initializationOptions (spec.md §6, "Environment
// variables"): RuntimePath configures the dynamic loader, CangjieHome /
// CangjiePath locate the compiler front-end binary and module root.
type Environment struct {
	RuntimePath string
	CangjieHome string
	CangjiePath string
}

// FromEnviron reads the spec's three environment variables.
func FromEnviron() Environment {
	return Environment{
		RuntimePath: os.Getenv("runtimePath"),
		CangjieHome: os.Getenv("cangjieHome"),
		CangjiePath: os.Getenv("cangjiePath"),
	}
}

// ParseInitializationOptions decodes an LSP `initialize` request's
// initializationOptions payload (raw JSON) into a Config.
func ParseInitializationOptions(raw json.RawMessage) (Config, error) {
	var c Config
	if len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("decode initializationOptions: %w", err)
	}
	return c, nil
}

// LoadWorkspaceDescriptor reads an optional TOML workspace descriptor
// from path and merges it over base: any field the descriptor sets
// overrides base's value for scalar fields; MultiModule entries are
// merged key-by-key so a workspace file can add modules the client
// didn't mention. A missing file is not an error — the client-supplied
// Config alone is a valid configuration.
func LoadWorkspaceDescriptor(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	var file Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Config{}, fmt.Errorf("decode workspace descriptor %s: %w", path, err)
	}
	return merge(base, file), nil
}

func merge(base, overlay Config) Config {
	out := base
	if overlay.ModulesHome != "" {
		out.ModulesHome = overlay.ModulesHome
	}
	if overlay.StdLibPath != "" {
		out.StdLibPath = overlay.StdLibPath
	}
	if overlay.CachePath != "" {
		out.CachePath = overlay.CachePath
	}
	if overlay.TargetLib != "" {
		out.TargetLib = overlay.TargetLib
	}
	if overlay.GCInterval != "" {
		out.GCInterval = overlay.GCInterval
	}
	if overlay.Platform.IsDeveco {
		out.Platform.IsDeveco = true
	}
	if overlay.Platform.Test {
		out.Platform.Test = true
	}
	if overlay.Platform.DisableAutoImport {
		out.Platform.DisableAutoImport = true
	}
	if len(overlay.MultiModule) > 0 {
		if out.MultiModule == nil {
			out.MultiModule = map[string]ModuleEntry{}
		}
		for k, v := range overlay.MultiModule {
			out.MultiModule[k] = v
		}
	}
	if len(overlay.Condition.PassedWhenKeyValue) > 0 {
		if out.Condition.PassedWhenKeyValue == nil {
			out.Condition.PassedWhenKeyValue = map[string]string{}
		}
		for k, v := range overlay.Condition.PassedWhenKeyValue {
			out.Condition.PassedWhenKeyValue[k] = v
		}
	}
	if len(overlay.Condition.PassedWhenCfgPaths) > 0 {
		out.Condition.PassedWhenCfgPaths = append(out.Condition.PassedWhenCfgPaths, overlay.Condition.PassedWhenCfgPaths...)
	}
	return out
}

// EffectiveGCInterval returns Config.GCInterval, or DefaultGCInterval
// when unset.
func (c Config) EffectiveGCInterval() string {
	if c.GCInterval == "" {
		return DefaultGCInterval
	}
	return c.GCInterval
}
