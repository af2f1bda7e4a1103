// Package rules holds the detection rule catalog. A Catalog is built once
// and never mutated; callers receive copies of its rule slices.
package rules

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/ppiankov/patchpilot/internal/model"
)

// Rule is a named, categorized pattern used to detect one kind of issue.
type Rule struct {
	Category    model.Category
	Key         Key
	Pattern     *regexp.Regexp
	Severity    model.Severity
	Title       string
	Description string
}

// Catalog is an immutable, ordered collection of rules grouped by category.
type Catalog struct {
	order      []model.Category
	byCategory map[model.Category][]Rule
}

type ruleSpec struct {
	key     Key
	pattern string
}

// scanOrder is the order categories are applied to a file.
var scanOrder = []model.Category{
	model.CategorySecurity,
	model.CategoryPerformance,
	model.CategoryCodeQuality,
	model.CategoryVulnerability,
	model.CategoryAIInsight,
	model.CategoryArchitecture,
}

// specs lists every rule in scan order within its category. Patterns are
// RE2, so matching time is linear in input size.
var specs = map[model.Category][]ruleSpec{
	model.CategorySecurity: {
		{KeyHardcodedSecret, `(?i)(password|pwd|passwd|pass|api[_-]?key|secret|token|auth|bearer)\s*[:=]\s*["'][^"']+["']`},
		{KeySQLInjection, `(?i)("\s*SELECT\s+.*\s+FROM\s+.*\+|'\s*SELECT\s+.*\s+FROM\s+.*\+)`},
		{KeyXSS, `(?i)(innerHTML\s*=|outerHTML\s*=|document\.write\(|eval\(|setTimeout\([^,]+,)`},
		{KeyWeakCrypto, `(?i)(MD5|SHA1|DES|RC4)\s*\(`},
		{KeyInsecureRandom, `(?i)Math\.random\(\)|Random\(\)`},
		{KeyCommandInjection, `(?i)(Runtime\.exec|ProcessBuilder|exec\(|system\(|shell_exec)`},
		{KeyPathTraversal, `(?i)(\.\./|\.\.\\ |%2e%2e|\.\.%2f)`},
		{KeyXXE, `(?i)(DocumentBuilderFactory|SAXParserFactory|XMLInputFactory)`},
	},
	model.CategoryPerformance: {
		{KeyNPlusOne, `(?i)for\s*\([^)]+\)\s*\{[^}]{0,500}\.(find|query|select|get)`},
		{KeyInefficientLoop, `for\s*\([^)]+\)\s*\{[^}]{0,200}for\s*\(`},
		{KeySynchronousIO, `(?i)(readFileSync|writeFileSync|readSync|writeSync)`},
		{KeyMemoryLeak, `(?i)(addEventListener|setInterval|setTimeout)\s*\(`},
		{KeyUnboundedCache, `(?i)(cache|Cache|CACHE)\s*\[.*?\]\s*=`},
		{KeyBlockingOperation, `(?i)(Thread\.sleep|sleep\(|time\.sleep|delay\()`},
	},
	model.CategoryCodeQuality: {
		{KeyGodClass, `(?i)class\s+\w+`},
		{KeyLongMethod, `(?i)(function|def|public|private|protected)\s+\w+\s*\([^)]*\)`},
		{KeyDeepNesting, `\{[^{}]{0,100}\{[^{}]{0,100}\{[^{}]{0,100}\{`},
		{KeyDuplicateCode, `(\w+\s*=\s*\w+)`},
		{KeyMagicNumbers, `[^\d][3-9]\d{2,}[^\d]`},
		{KeyCommentedCode, `(?m)^\s*//.*\b(if|else|for|while|function|class|return|import|export)\b`},
	},
	model.CategoryVulnerability: {
		{KeySSRF, `(?i)(fetch|axios|request|http\.get|http\.request)\s*\(`},
		{KeyRaceCondition, `(?i)(synchronized|lock|mutex)`},
		{KeyBufferOverflow, `(?i)(strcpy|strcat|gets|sprintf)\s*\(`},
		{KeyInsecureDeserialization, `(?i)(ObjectInputStream|pickle\.loads|unserialize|JSON\.parse\([^)]*\+)`},
		{KeyOpenRedirect, `(?i)(redirect|location\.href|window\.location)\s*=\s*[^;]*\+`},
	},
	model.CategoryAIInsight: {
		{KeyMemoryOptimization, `(?i)(new\s+\w+\[\d{4,}\]|ArrayList\(\d{4,}\)|HashMap\(\d{4,}\))`},
		{KeyDataValidationMissing, `(?i)(request\.get|request\.post|req\.body|req\.params)`},
		{KeyAsyncAwaitMissing, `(?i)\.then\s*\([^)]*\)\s*\.catch`},
		{KeyResourceCleanupMissing, `(?i)(new\s+(FileInputStream|FileOutputStream|Connection|Statement|ResultSet))`},
	},
	model.CategoryArchitecture: {
		{KeyTightCoupling, `(?i)new\s+\w+\(\)`},
		{KeyMissingDependencyInjection, `(?i)@Autowired|@Inject|@Resource`},
		{KeyCircularDependencyRisk, `(?i)import\s+[^;]+;`},
	},
}

// Default builds the standard catalog. It panics if a built-in pattern
// fails to compile.
func Default() *Catalog {
	c, err := build(specs)
	if err != nil {
		panic(err)
	}
	return c
}

func build(src map[model.Category][]ruleSpec) (*Catalog, error) {
	c := &Catalog{
		order:      slices.Clone(scanOrder),
		byCategory: make(map[model.Category][]Rule, len(scanOrder)),
	}
	for _, cat := range scanOrder {
		for _, s := range src[cat] {
			re, err := regexp.Compile(s.pattern)
			if err != nil {
				return nil, fmt.Errorf("compile rule %s/%s: %w", cat, s.key, err)
			}
			c.byCategory[cat] = append(c.byCategory[cat], Rule{
				Category:    cat,
				Key:         s.key,
				Pattern:     re,
				Severity:    SeverityFor(cat),
				Title:       Title(cat, s.key),
				Description: Description(cat, s.key),
			})
		}
	}
	return c, nil
}

// Categories returns the catalog's categories in scan order.
func (c *Catalog) Categories() []model.Category {
	return slices.Clone(c.order)
}

// RulesFor returns the ordered rules of a category. The returned slice is a
// copy; mutating it does not affect the catalog.
func (c *Catalog) RulesFor(cat model.Category) []Rule {
	return slices.Clone(c.byCategory[cat])
}

// Len returns the total number of rules.
func (c *Catalog) Len() int {
	n := 0
	for _, rs := range c.byCategory {
		n += len(rs)
	}
	return n
}

// SeverityFor returns the fixed severity of a rule category.
func SeverityFor(cat model.Category) model.Severity {
	switch cat {
	case model.CategorySecurity, model.CategoryVulnerability:
		return model.SeverityHigh
	case model.CategoryCodeQuality:
		return model.SeverityLow
	default:
		return model.SeverityMedium
	}
}
