package fixtures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
)

// Defaults applied to recipe fields that are missing or zero.
const (
	DefaultPrepTime   = 10
	DefaultCookTime   = 15
	DefaultServings   = 12
	DefaultDifficulty = "Easy"
)

// DefaultNutrition is used for every macro a recipe does not provide.
var DefaultNutrition = engine.Nutrition{
	Calories: 150,
	Protein:  15,
	Carbs:    10,
	Fat:      5,
	Fiber:    2,
	Sugar:    3,
}

// number accepts a JSON number or a numeric string. Anything else decodes to zero.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = number(v)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*n = number(v)
	return nil
}

// text accepts a JSON string, number or boolean. Anything else decodes to "".
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	*t = text(scalarString(data))
	return nil
}

// stringList accepts a list of scalars or a single scalar. Elements that
// are not scalars are dropped.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		if v := scalarString(data); v != "" {
			*l = stringList{v}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		if v := scalarString(item); v != "" {
			out = append(out, v)
		}
	}
	*l = out
	return nil
}

// rawList accepts a list or a single element.
type rawList []json.RawMessage

func (l *rawList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] != '[' {
		*l = rawList{json.RawMessage(data)}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

type rawNutrition struct {
	Calories number `json:"calories"`
	Protein  number `json:"protein"`
	Carbs    number `json:"carbs"`
	Fat      number `json:"fat"`
	Fiber    number `json:"fiber"`
	Sugar    number `json:"sugar"`
}

type rawRecipe struct {
	Slug         text            `json:"slug"`
	Title        text            `json:"title"`
	Description  text            `json:"description"`
	PrepTime     number          `json:"prepTime"`
	CookTime     number          `json:"cookTime"`
	TotalTime    number          `json:"totalTime"`
	Servings     number          `json:"servings"`
	Yield        number          `json:"yield"`
	Difficulty   text            `json:"difficulty"`
	Nutrition    json.RawMessage `json:"nutrition"`
	Categories   stringList      `json:"categories"`
	Ingredients  rawList         `json:"ingredients"`
	Instructions rawList         `json:"instructions"`
	Tips         stringList      `json:"tips"`
	Tags         stringList      `json:"tags"`

	// flat macros, used when nutrition.* is absent
	rawNutrition
}

type rawPack struct {
	Slug        text       `json:"slug"`
	Name        text       `json:"name"`
	Description text       `json:"description"`
	IsFree      *bool      `json:"isFree"`
	Recipes     stringList `json:"recipes"`
}

// ParseRecipes decodes a recipes fixture: either a bare list or an object
// with a "recipes" list. Entries that cannot be decoded are left out and
// reported through an *engine.SkippedEntriesError returned alongside the
// recipes that did decode.
func ParseRecipes(data []byte) ([]engine.Recipe, error) {
	items, err := decodeList(data, "recipes")
	if err != nil {
		return nil, err
	}
	out := make([]engine.Recipe, 0, len(items))
	var skipped []string
	for i, item := range items {
		r, err := parseRecipe(item)
		if err != nil {
			skipped = append(skipped, describeEntry(i, item, err))
			continue
		}
		out = append(out, r)
	}
	return out, skippedError(skipped)
}

// ParsePacks decodes a packs fixture: either a bare list or an object with
// a "packs" list. Malformed entries are handled as in ParseRecipes.
func ParsePacks(data []byte) ([]engine.Pack, error) {
	items, err := decodeList(data, "packs")
	if err != nil {
		return nil, err
	}
	out := make([]engine.Pack, 0, len(items))
	var skipped []string
	for i, item := range items {
		var raw rawPack
		if err := json.Unmarshal(item, &raw); err != nil {
			skipped = append(skipped, describeEntry(i, item, err))
			continue
		}
		out = append(out, engine.Pack{
			Slug:        string(raw.Slug),
			Name:        string(raw.Name),
			Description: string(raw.Description),
			IsFree:      raw.IsFree == nil || *raw.IsFree,
			RecipeSlugs: raw.Recipes,
		})
	}
	return out, skippedError(skipped)
}

func parseRecipe(item json.RawMessage) (engine.Recipe, error) {
	var raw rawRecipe
	if err := json.Unmarshal(item, &raw); err != nil {
		return engine.Recipe{}, err
	}
	return normalizeRecipe(&raw)
}

func skippedError(skipped []string) error {
	if len(skipped) == 0 {
		return nil
	}
	return &engine.SkippedEntriesError{Skipped: skipped}
}

// describeEntry names entry i by position and, when it has one, by slug.
func describeEntry(i int, item json.RawMessage, err error) string {
	var keyed struct {
		Slug text `json:"slug"`
	}
	if json.Unmarshal(item, &keyed) == nil && keyed.Slug != "" {
		return fmt.Sprintf("#%d (%s): %v", i+1, keyed.Slug, err)
	}
	return fmt.Sprintf("#%d: %v", i+1, err)
}

func decodeList(data []byte, wrapper string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty fixture")
	}
	list := json.RawMessage(trimmed)
	if trimmed[0] != '[' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("invalid %s fixture: %w", wrapper, err)
		}
		var ok bool
		if list, ok = obj[wrapper]; !ok {
			return nil, fmt.Errorf("fixture object has no %q list", wrapper)
		}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return nil, fmt.Errorf("invalid %s list: %w", wrapper, err)
	}
	return items, nil
}

func normalizeRecipe(raw *rawRecipe) (engine.Recipe, error) {
	prep := orInt(raw.PrepTime, DefaultPrepTime)
	cook := orInt(raw.CookTime, DefaultCookTime)

	r := engine.Recipe{
		Slug:          string(raw.Slug),
		Title:         string(raw.Title),
		Description:   string(raw.Description),
		PrepTime:      prep,
		CookTime:      cook,
		TotalTime:     orInt(raw.TotalTime, prep+cook),
		Servings:      orInt(raw.Servings, orInt(raw.Yield, DefaultServings)),
		Difficulty:    orString(string(raw.Difficulty), DefaultDifficulty),
		Nutrition:     nutrition(raw),
		Tips:          raw.Tips,
		Tags:          raw.Tags,
		CategorySlugs: raw.Categories,
		IsPublished:   true,
	}

	for _, item := range raw.Ingredients {
		ing, err := parseIngredient(item)
		if err != nil {
			return engine.Recipe{}, err
		}
		r.Ingredients = append(r.Ingredients, ing)
	}
	for i, item := range raw.Instructions {
		step, err := parseInstruction(item)
		if err != nil {
			return engine.Recipe{}, err
		}
		r.Instructions = append(r.Instructions, engine.Instruction{StepNumber: i + 1, Instruction: step})
	}
	return r, nil
}

// nutrition prefers the nested nutrition object, then flat fields, then
// defaults. A nutrition value that is not an object is ignored.
func nutrition(raw *rawRecipe) engine.Nutrition {
	var nested rawNutrition
	if len(raw.Nutrition) > 0 {
		if err := json.Unmarshal(raw.Nutrition, &nested); err != nil {
			nested = rawNutrition{}
		}
	}
	pick := func(a, b number, def float64) float64 {
		if a != 0 {
			return float64(a)
		}
		if b != 0 {
			return float64(b)
		}
		return def
	}
	return engine.Nutrition{
		Calories: pick(nested.Calories, raw.rawNutrition.Calories, DefaultNutrition.Calories),
		Protein:  pick(nested.Protein, raw.rawNutrition.Protein, DefaultNutrition.Protein),
		Carbs:    pick(nested.Carbs, raw.rawNutrition.Carbs, DefaultNutrition.Carbs),
		Fat:      pick(nested.Fat, raw.rawNutrition.Fat, DefaultNutrition.Fat),
		Fiber:    pick(nested.Fiber, raw.rawNutrition.Fiber, DefaultNutrition.Fiber),
		Sugar:    pick(nested.Sugar, raw.rawNutrition.Sugar, DefaultNutrition.Sugar),
	}
}

type rawIngredient struct {
	Name   text `json:"name"`
	Amount text `json:"amount"`
	Unit   text `json:"unit"`
	Notes  text `json:"notes"`
}

// parseIngredient accepts "2 eggs" or {"name":"eggs","amount":2,...}.
func parseIngredient(data json.RawMessage) (engine.Ingredient, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return engine.Ingredient{Name: s}, nil
	}
	var raw rawIngredient
	if err := json.Unmarshal(data, &raw); err != nil {
		return engine.Ingredient{}, fmt.Errorf("invalid ingredient %s: %w", string(data), err)
	}
	return engine.Ingredient{
		Name:   string(raw.Name),
		Amount: string(raw.Amount),
		Unit:   string(raw.Unit),
		Notes:  string(raw.Notes),
	}, nil
}

// parseInstruction accepts a bare string or an object carrying the step
// text under "text", "instruction" or "step".
func parseInstruction(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Text        text `json:"text"`
		Instruction text `json:"instruction"`
		Step        text `json:"step"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("invalid instruction %s: %w", string(data), err)
	}
	return orString(string(obj.Text), orString(string(obj.Instruction), string(obj.Step))), nil
}

// scalarString renders a JSON string, number or boolean as text; 2.50
// becomes "2.5". Objects, lists and null render as "".
func scalarString(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err == nil {
			return strconv.FormatBool(b)
		}
	case '{', '[', 'n':
		return ""
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return ""
}

func orInt(n number, def int) int {
	if n == 0 {
		return def
	}
	return int(n)
}

func orString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
