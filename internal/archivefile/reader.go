// Package archivefile is the default archive reader collaborator: it
// reads an exported tenant off disk into the in-memory shape
// internal/migrate consumes. The on-disk format is this tool's own and
// not specified by the engine itself — any other reader that produces an
// *record.Archive works just as well.
//
// Layout, rooted at the given directory:
//
//	schema.json              entity/attribute/relationship metadata
//	records/<entity>.jsonl    one archived record per line
//	relations/<entity>.jsonl  one M2M block per line, keyed by relationship
package archivefile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvmigrate/core/internal/record"
)

const maxLineSize = 64 * 1024 * 1024

type wireAttribute struct {
	Name         string `json:"name"`
	IsLookup     bool   `json:"isLookup"`
	TargetEntity string `json:"targetEntity,omitempty"`
}

type wireM2M struct {
	SchemaName     string `json:"schemaName"`
	IntersectName  string `json:"intersectName,omitempty"`
	Entity1Logical string `json:"entity1Logical"`
	Entity2Logical string `json:"entity2Logical"`
}

type wireEntitySchema struct {
	LogicalName    string          `json:"logicalName"`
	PrimaryKey     string          `json:"primaryKey"`
	ObjectTypeCode int             `json:"objectTypeCode,omitempty"`
	DisablePlugins bool            `json:"disablePlugins,omitempty"`
	Attributes     []wireAttribute `json:"attributes,omitempty"`
	ManyToMany     []wireM2M       `json:"manyToMany,omitempty"`
}

type wireSchema struct {
	Entities []wireEntitySchema `json:"entities"`
}

type wireValue struct {
	Kind   string  `json:"kind"`
	String string  `json:"string,omitempty"`
	Number float64 `json:"number,omitempty"`
	Bool   bool    `json:"bool,omitempty"`
	Code   int     `json:"code,omitempty"`
	Entity string  `json:"entity,omitempty"`
	ID     string  `json:"id,omitempty"`
}

type wireArchiveRecord struct {
	ID         string               `json:"id"`
	Attributes map[string]wireValue `json:"attributes"`
}

type wireM2MBlock struct {
	SourceID     string   `json:"sourceId"`
	Relationship string   `json:"relationship"`
	TargetEntity string   `json:"targetEntity"`
	TargetIDs    []string `json:"targetIds"`
}

// Read loads an archive from dir. Entities with no records file are
// simply absent from the returned Archive's EntityData, matching
// record.Archive.Entities' "at least one archived record" contract.
func Read(dir string) (*record.Archive, error) {
	schema, err := readSchema(filepath.Join(dir, "schema.json"))
	if err != nil {
		return nil, err
	}

	archive := record.NewArchive(schema)

	for name := range schema.Entities {
		recs, err := readRecords(filepath.Join(dir, "records", name+".jsonl"))
		if err != nil {
			return nil, fmt.Errorf("archivefile: %s: %w", name, err)
		}
		if len(recs) > 0 {
			archive.EntityData[name] = recs
		}

		blocks, err := readRelations(filepath.Join(dir, "relations", name+".jsonl"))
		if err != nil {
			return nil, fmt.Errorf("archivefile: %s relations: %w", name, err)
		}
		if len(blocks) > 0 {
			archive.RelationshipData[name] = blocks
		}
	}

	return archive, nil
}

func readSchema(path string) (*record.Schema, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("archivefile: read schema: %w", err)
	}
	var ws wireSchema
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("archivefile: parse schema: %w", err)
	}

	schema := record.NewSchema()
	for _, we := range ws.Entities {
		es := &record.EntitySchema{
			LogicalName:    we.LogicalName,
			PrimaryKey:     we.PrimaryKey,
			ObjectTypeCode: we.ObjectTypeCode,
			DisablePlugins: we.DisablePlugins,
		}
		for _, wa := range we.Attributes {
			es.Attributes = append(es.Attributes, record.AttributeSchema{
				Name:         wa.Name,
				IsLookup:     wa.IsLookup,
				TargetEntity: wa.TargetEntity,
			})
		}
		for _, wm := range we.ManyToMany {
			es.ManyToMany = append(es.ManyToMany, record.M2MRelationship{
				SchemaName:     wm.SchemaName,
				IntersectName:  wm.IntersectName,
				Entity1Logical: wm.Entity1Logical,
				Entity2Logical: wm.Entity2Logical,
			})
		}
		schema.Add(es)
	}
	return schema, nil
}

func readRecords(path string) ([]*record.Record, error) {
	file, err := os.Open(path) // #nosec G304 -- path is operator-supplied
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var out []*record.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var wr wireArchiveRecord
		if err := json.Unmarshal([]byte(line), &wr); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNum, err)
		}
		entity := strings.TrimSuffix(filepath.Base(path), ".jsonl")
		rec := record.NewRecord(entity, wr.ID)
		for name, wv := range wr.Attributes {
			v, err := toValue(wv)
			if err != nil {
				return nil, fmt.Errorf("%s line %d attribute %s: %w", path, lineNum, name, err)
			}
			rec.Set(name, v)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}

func readRelations(path string) ([]record.M2MBlock, error) {
	file, err := os.Open(path) // #nosec G304 -- path is operator-supplied
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var out []record.M2MBlock
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var wb wireM2MBlock
		if err := json.Unmarshal([]byte(line), &wb); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNum, err)
		}
		out = append(out, record.M2MBlock{
			SourceID:     wb.SourceID,
			Relationship: wb.Relationship,
			TargetEntity: wb.TargetEntity,
			TargetIDs:    wb.TargetIDs,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}

func toValue(wv wireValue) (record.Value, error) {
	switch wv.Kind {
	case "string":
		return record.NewString(wv.String), nil
	case "number":
		return record.NewNumber(wv.Number), nil
	case "bool":
		return record.NewBool(wv.Bool), nil
	case "instant":
		return record.NewInstant(wv.String), nil
	case "decimal":
		return record.NewDecimal(wv.Number), nil
	case "money":
		return record.NewMoney(wv.Number), nil
	case "optioncode":
		return record.NewOptionCode(wv.Code), nil
	case "reference":
		return record.NewReference(wv.Entity, wv.ID), nil
	default:
		return record.Value{}, fmt.Errorf("unknown value kind %q", wv.Kind)
	}
}
