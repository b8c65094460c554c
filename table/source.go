package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ImageFormat represents the on-disk format of a table image
type ImageFormat string

const (
	FormatBinary ImageFormat = "tbl"
	FormatYAML   ImageFormat = "yaml"
	FormatJSON   ImageFormat = "json"
	FormatTOML   ImageFormat = "toml"
)

// FormatFromPath determines the image format from a file extension
func FormatFromPath(path string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tbl":
		return FormatBinary, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Source produces candidate images
type Source interface {
	// Read builds a candidate image for the schema
	Read(schema *Schema) (*Image, error)

	// String names the source in logs and table info
	String() string
}

// FileSource reads an image file whose format follows its extension
type FileSource string

// Read loads and parses the file
func (f FileSource) Read(schema *Schema) (*Image, error) {
	path := string(f)
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return ParseImage(schema, data, format)
}

func (f FileSource) String() string {
	return string(f)
}

// ValuesSource supplies an image from named values held in memory
type ValuesSource map[string]uint64

// Read builds the image from the values
func (v ValuesSource) Read(schema *Schema) (*Image, error) {
	return schema.NewImage(v)
}

func (v ValuesSource) String() string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, v[name])
	}
	return "values{" + strings.Join(parts, ",") + "}"
}

// ParseImage decodes image data in the given format
func ParseImage(schema *Schema, data []byte, format ImageFormat) (*Image, error) {
	if format == FormatBinary {
		return schema.Decode(data)
	}

	values := make(map[string]uint64)
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parse yaml image: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var raw map[string]json.Number
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse json image: %w", err)
		}
		for name, num := range raw {
			v, err := strconv.ParseUint(num.String(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse json image: field %s: %w", name, err)
			}
			values[name] = v
		}
	case FormatTOML:
		var raw map[string]int64
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("parse toml image: %w", err)
		}
		for name, v := range raw {
			if v < 0 {
				return nil, fmt.Errorf("%w: %s.%s = %d", ErrFieldOverflow, schema.Name, name, v)
			}
			values[name] = uint64(v)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return schema.NewImage(values)
}

// EncodeImage renders an image in the given format
func EncodeImage(img *Image, format ImageFormat) ([]byte, error) {
	switch format {
	case FormatBinary:
		return img.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(img.Values())
	case FormatJSON:
		return json.MarshalIndent(img.Values(), "", "  ")
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(img.Values()); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
