package catalog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

const (
	// ModelBlockType marks a JSON-LD block describing a 3D model
	ModelBlockType = "3DModel"

	// BinaryModelFormat is the media type of a downloadable glTF binary
	BinaryModelFormat = "model/gltf-binary"

	mediaObjectType = "MediaObject"
	unknownProduct  = "Unknown_Product"
)

// Block is the subset of a JSON-LD object the pipeline cares about
type Block struct {
	Types    stringOrList `json:"@type"`
	Name     string       `json:"name"`
	Encoding encodingList `json:"encoding"`
}

// Encoding is one entry of a block's encoding list
type Encoding struct {
	Types      stringOrList `json:"@type"`
	Format     string       `json:"encodingFormat"`
	ContentURL string       `json:"contentUrl"`
}

// Is reports whether the block carries the given @type
func (b Block) Is(t string) bool {
	return b.Types.contains(t)
}

// stringOrList accepts both "@type": "X" and "@type": ["X", "Y"]
type stringOrList []string

func (s *stringOrList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stringOrList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func (s stringOrList) contains(v string) bool {
	for _, t := range s {
		if t == v {
			return true
		}
	}
	return false
}

// encodingList accepts a single encoding object as well as an array
type encodingList []Encoding

func (e *encodingList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var one Encoding
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*e = encodingList{one}
		return nil
	}
	var many []Encoding
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*e = many
	return nil
}

// ExtractJSONLD returns the raw text of every <script type="application/ld+json"> element
func ExtractJSONLD(page []byte) []string {
	var scripts []string
	var sb strings.Builder
	inScript := false

	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return scripts
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "script" {
				continue
			}
			inScript = hasAttr && isJSONLDScript(z)
			sb.Reset()
		case html.TextToken:
			if inScript {
				sb.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "script" && inScript {
				scripts = append(scripts, sb.String())
				inScript = false
			}
		}
	}
}

func isJSONLDScript(z *html.Tokenizer) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "type" && strings.EqualFold(strings.TrimSpace(string(val)), "application/ld+json") {
			return true
		}
		if !more {
			return false
		}
	}
}

// ParseBlocks decodes every JSON-LD script on a page. Scripts that fail to
// parse are skipped; a script holding an array contributes each element.
func ParseBlocks(page []byte) []Block {
	var blocks []Block
	for _, script := range ExtractJSONLD(page) {
		script = strings.TrimSpace(script)
		if strings.HasPrefix(script, "[") {
			var many []Block
			if err := json.Unmarshal([]byte(script), &many); err != nil {
				slog.Debug("Skipping malformed JSON-LD array", "error", err)
				continue
			}
			blocks = append(blocks, many...)
			continue
		}
		var one Block
		if err := json.Unmarshal([]byte(script), &one); err != nil {
			slog.Debug("Skipping malformed JSON-LD block", "error", err)
			continue
		}
		blocks = append(blocks, one)
	}
	return blocks
}

// HasModel reports whether any block describes a 3D model
func HasModel(blocks []Block) bool {
	for _, b := range blocks {
		if b.Is(ModelBlockType) {
			return true
		}
	}
	return false
}

// ProductName returns the first non-empty JSON-LD name, falling back to the
// page's product title heading. Empty when neither exists.
func ProductName(page []byte, blocks []Block) string {
	for _, b := range blocks {
		if name := strings.TrimSpace(b.Name); name != "" {
			return name
		}
	}
	return productTitle(page)
}

// FindModel selects the first 3D model block with a glTF binary encoding and
// returns its sanitized display name and the binary's URL
func FindModel(blocks []Block) (name, modelURL string, ok bool) {
	for _, b := range blocks {
		if !b.Is(ModelBlockType) {
			continue
		}
		for _, enc := range b.Encoding {
			if len(enc.Types) > 0 && !enc.Types.contains(mediaObjectType) {
				continue
			}
			if enc.Format == BinaryModelFormat && enc.ContentURL != "" {
				name = strings.TrimSpace(b.Name)
				if name == "" {
					name = unknownProduct
				}
				return SanitizeName(name), enc.ContentURL, true
			}
		}
	}
	return "", "", false
}

// SanitizeName replaces characters that are illegal in file names with '_'
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', '*', '?', ':', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

// productTitle reads the text of <h1 class="product-title">
func productTitle(page []byte) string {
	var sb strings.Builder
	inTitle := false

	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "h1" && hasAttr && hasClass(z, "product-title") {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				sb.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "h1" && inTitle {
				return strings.TrimSpace(sb.String())
			}
		}
	}
}

func hasClass(z *html.Tokenizer, class string) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "class" {
			for _, c := range strings.Fields(string(val)) {
				if c == class {
					return true
				}
			}
		}
		if !more {
			return false
		}
	}
}
