package model3d

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/qmuntal/gltf"
)

// ErrEmptyScene is returned for a model whose main scene has no nodes
var ErrEmptyScene = errors.New("model has an empty scene")

// Asset is a decoded, instantiable model
type Asset struct {
	Name     string
	Nodes    int
	Meshes   int
	Document *gltf.Document
}

// Decoder turns a downloaded binary into an Asset
type Decoder interface {
	Decode(name string, data []byte) (*Asset, error)
}

// GLBDecoder decodes glTF binaries
type GLBDecoder struct{}

// Decode parses data and checks that the main scene has something to show
func (GLBDecoder) Decode(name string, data []byte) (*Asset, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decoding %s: empty file", name)
	}

	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	scene := 0
	if doc.Scene != nil {
		scene = int(*doc.Scene)
	}
	if scene < 0 || scene >= len(doc.Scenes) || len(doc.Scenes[scene].Nodes) == 0 {
		return nil, fmt.Errorf("decoding %s: %w", name, ErrEmptyScene)
	}

	return &Asset{
		Name:     name,
		Nodes:    len(doc.Nodes),
		Meshes:   len(doc.Meshes),
		Document: doc,
	}, nil
}
