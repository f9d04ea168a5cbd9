package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	fenceStartRe = regexp.MustCompile("(?is)^\\s*```(?:json)?\\s*")
	fenceEndRe   = regexp.MustCompile("(?is)\\s*```\\s*$")
)

var errNoJSONObject = errors.New("no json object in model response")

// cleanLLMJSONResponse quita fences ```json ... ``` y BOM, dejando el contenido usable.
func cleanLLMJSONResponse(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "\uFEFF")
	s = fenceStartRe.ReplaceAllString(s, "")
	s = fenceEndRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// extractFirstJSONObject devuelve el primer objeto {...} balanceado, respetando strings.
func extractFirstJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return ""
	}

	inString := false
	escape := false
	depth := 0
	for i := start; i < len(input); i++ {
		ch := input[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}
	return ""
}

// parseModelJSON limpia la respuesta del modelo, la valida contra schema y la decodifica en out.
// Cualquier error debe tratarse como respuesta malformada.
func parseModelJSON(raw string, schema *jsonschema.Schema, out any) error {
	obj := extractFirstJSONObject(cleanLLMJSONResponse(raw))
	if obj == "" {
		return errNoJSONObject
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	if schema != nil {
		if err := schema.Validate(doc); err != nil {
			return fmt.Errorf("validate model json: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("unmarshal model json: %w", err)
	}
	return nil
}

const emotionAnalysisSchemaJSON = `{
  "type": "object",
  "required": ["primary_emotion", "confidence", "intensity"],
  "properties": {
    "primary_emotion": {"enum": ["happy","sad","angry","surprised","thoughtful","excited","calm","confident","curious","concerned","neutral"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "intensity": {"type": "number", "minimum": 0, "maximum": 1},
    "secondary_emotions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["emotion", "confidence"],
        "properties": {
          "emotion": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "vad": {
      "type": "object",
      "required": ["valence", "arousal", "dominance"],
      "properties": {
        "valence": {"type": "number", "minimum": -1, "maximum": 1},
        "arousal": {"type": "number", "minimum": 0, "maximum": 1},
        "dominance": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "triggers": {"type": "array", "items": {"type": "string"}}
  }
}`

const memoryExtractionSchemaJSON = `{
  "type": "object",
  "required": ["memories"],
  "properties": {
    "memories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["content", "type", "importance", "confidence"],
        "properties": {
          "content": {"type": "string"},
          "type": {"enum": ["fact","preference","event","relationship","skill"]},
          "importance": {"type": "number", "minimum": 0, "maximum": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

const userProfileSchemaJSON = `{
  "type": "object",
  "properties": {
    "nickname": {"type": "string"},
    "interests": {"type": "array", "items": {"type": "string"}},
    "preferences": {"type": "object", "additionalProperties": {"type": "string"}},
    "communication_style": {"type": "string"}
  }
}`

var (
	emotionAnalysisSchema  = jsonschema.MustCompileString("emotion_analysis.json", emotionAnalysisSchemaJSON)
	memoryExtractionSchema = jsonschema.MustCompileString("memory_extraction.json", memoryExtractionSchemaJSON)
	userProfileSchema      = jsonschema.MustCompileString("user_profile.json", userProfileSchemaJSON)
)
