package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/fieldpipe/internal/core"
)

type definitionFile struct {
	Tables []definition `yaml:"tables"`
}

type definition struct {
	Zone        string `yaml:"zone"`
	TableName   string `yaml:"table_name"`
	QueryType   string `yaml:"query_type"`
	Query       string `yaml:"query"`
	DataColumns string `yaml:"data_columns"`
}

var validZones = map[core.Zone]bool{
	core.ZoneCommon: true,
	core.ZoneBronze: true,
	core.ZoneSilver: true,
	core.ZoneGold:   true,
}

// LoadDefinitions reads registry entries from a YAML file. data_columns is a
// comma-separated list, as stored in the registry.
func LoadDefinitions(path string) ([]core.ScriptEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes registry entries from YAML.
func ParseDefinitions(data []byte) ([]core.ScriptEntry, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}

	entries := make([]core.ScriptEntry, 0, len(file.Tables))
	for i, d := range file.Tables {
		e := core.ScriptEntry{
			TableName: strings.TrimSpace(d.TableName),
			QueryType: strings.ToUpper(strings.TrimSpace(d.QueryType)),
			Zone:      core.Zone(strings.ToUpper(strings.TrimSpace(d.Zone))),
			Query:     strings.TrimSpace(d.Query),
		}
		if e.QueryType == "" {
			e.QueryType = core.QueryTypeCreate
		}
		for _, c := range strings.Split(d.DataColumns, ",") {
			if c = strings.TrimSpace(c); c != "" {
				e.DataColumns = append(e.DataColumns, c)
			}
		}

		if e.TableName == "" || e.Query == "" {
			return nil, fmt.Errorf("definition %d: table_name and query are required", i)
		}
		if !validZones[e.Zone] {
			return nil, fmt.Errorf("definition %s: unknown zone %q", e.TableName, d.Zone)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
