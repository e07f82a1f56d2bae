package models

import (
	"fmt"
	"strings"
)

// RegistryRootKey is a Windows registry hive.
type RegistryRootKey string

// Registry hives.
const (
	HKeyLocalMachine  RegistryRootKey = "HKEY_LOCAL_MACHINE"
	HKeyCurrentUser   RegistryRootKey = "HKEY_CURRENT_USER"
	HKeyClassesRoot   RegistryRootKey = "HKEY_CLASSES_ROOT"
	HKeyUsers         RegistryRootKey = "HKEY_USERS"
	HKeyCurrentConfig RegistryRootKey = "HKEY_CURRENT_CONFIG"
)

var registryAliases = map[string]RegistryRootKey{
	"HKLM": HKeyLocalMachine,
	"HKCU": HKeyCurrentUser,
	"HKCR": HKeyClassesRoot,
	"HKU":  HKeyUsers,
	"HKCC": HKeyCurrentConfig,
}

// ParseRegistryRootKey accepts a long hive name or its short alias, case-insensitively.
func ParseRegistryRootKey(s string) (RegistryRootKey, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if key, ok := registryAliases[upper]; ok {
		return key, nil
	}
	for _, key := range registryAliases {
		if string(key) == upper {
			return key, nil
		}
	}
	return "", fmt.Errorf("unknown registry root key %q", s)
}

// Path joins the hive with an optional subkey.
func (k RegistryRootKey) Path(subkey string) string {
	subkey = strings.Trim(subkey, `\`)
	if subkey == "" {
		return string(k)
	}
	return string(k) + `\` + subkey
}
