package adapter

import (
	"fmt"

	"llmdeepseek/internal/core"
)

// Public id prefixes, one per kind.
const (
	PrefixChat       = "deepseekchat"
	PrefixCompletion = "deepseekcompletion"
)

// Variant is one registrable model: a catalog entry paired with the endpoint
// kind it is called through.
type Variant struct {
	PublicID          string
	ProviderModelName string
	Kind              core.Kind
	APIBase           string
}

// NewVariant builds the variant of kind for the provider model name.
func NewVariant(kind core.Kind, name, apiBase string) Variant {
	prefix := PrefixChat
	if kind == core.KindCompletion {
		prefix = PrefixCompletion
	}
	return Variant{
		PublicID:          prefix + "/" + name,
		ProviderModelName: name,
		Kind:              kind,
		APIBase:           apiBase,
	}
}

// Alias is the short name the host may use instead of PublicID.
func (v Variant) Alias() string {
	if v.Kind == core.KindCompletion {
		return v.ProviderModelName + "-completion"
	}
	return v.ProviderModelName
}

// String returns the human-readable label shown in model listings.
func (v Variant) String() string {
	if v.Kind == core.KindCompletion {
		return fmt.Sprintf("DeepSeek Completion: %s", v.PublicID)
	}
	return fmt.Sprintf("DeepSeek Chat: %s", v.PublicID)
}

// VariantsFor expands catalog entries into variants, chat before completion
// for each entry, preserving catalog order.
func VariantsFor(entries []core.CatalogEntry, apiBase string) []Variant {
	variants := make([]Variant, 0, 2*len(entries))
	for _, e := range entries {
		variants = append(variants,
			NewVariant(core.KindChat, e.ID, apiBase),
			NewVariant(core.KindCompletion, e.ID, apiBase),
		)
	}
	return variants
}
