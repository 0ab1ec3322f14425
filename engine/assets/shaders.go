package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/lumen/engine/core"
)

// ManifestName is the file listing the compiled shaders of a directory.
const ManifestName = "shaders.toml"

const spirvMagic = 0x07230203

type shaderEntry struct {
	Name  string `toml:"name"`
	Stage string `toml:"stage"`
	Entry string `toml:"entry"`
	File  string `toml:"file"`
}

type shaderManifest struct {
	Shaders []shaderEntry `toml:"shader"`
}

// LoadShaders reads the manifest in dir and every SPIR-V file it lists.
func LoadShaders(dir string) ([]ShaderBlob, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader manifest %s", path)
	}
	var m shaderManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing shader manifest %s", path)
	}

	blobs := make([]ShaderBlob, 0, len(m.Shaders))
	for _, e := range m.Shaders {
		var stage ShaderStage
		switch e.Stage {
		case "vertex":
			stage = ShaderStageVertex
		case "fragment":
			stage = ShaderStageFragment
		default:
			return nil, errors.Newf("shader %q: unknown stage %q", e.Name, e.Stage)
		}
		code, err := readSPIRV(filepath.Join(dir, e.File))
		if err != nil {
			return nil, errors.Wrapf(core.ErrMissingShader, "shader %q: %s", e.Name, err)
		}
		entry := e.Entry
		if entry == "" {
			entry = "main"
		}
		blobs = append(blobs, ShaderBlob{
			Name:       e.Name,
			Stage:      stage,
			EntryPoint: entry,
			Code:       code,
		})
	}
	core.LogDebug("loaded %d shaders from %s", len(blobs), dir)
	return blobs, nil
}

// Read SPIR-V binary file, checking the header word.
func readSPIRV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, errors.Newf("%s: %d bytes is not a SPIR-V module", path, len(data))
	}
	if binary.LittleEndian.Uint32(data) != spirvMagic {
		return nil, errors.Newf("%s: bad SPIR-V magic", path)
	}
	return data, nil
}
