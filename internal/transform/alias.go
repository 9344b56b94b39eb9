package transform

import (
	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/result"
)

// Alias tags of the rules that add artificial fields.
const (
	tagDeepRename     = "deep_rename"
	tagHydration      = "hydration"
	tagBatchHydration = "batch_hydration"
)

// AliasHelper names the artificial fields one rule adds for one field:
// nadel__<tag>__<resultKey>__<name>.
type AliasHelper struct {
	prefix string
}

func NewAliasHelper(tag, resultKey string) AliasHelper {
	return AliasHelper{prefix: result.ArtificialPrefix + tag + "__" + resultKey + "__"}
}

// Alias returns the alias of an artificial field selecting name.
func (a AliasHelper) Alias(name string) string { return a.prefix + name }

// TypeNameAlias returns the alias of the artificial __typename field.
func (a AliasHelper) TypeNameAlias() string { return a.prefix + language.TypeNameField }
