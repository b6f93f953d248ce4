// Package registry holds the fixed table of supported languages: the
// display name, toolchain version, source suffix, and run recipe each
// one executes under.
package registry

import "sync"

// Descriptor is an immutable record describing one supported language.
type Descriptor struct {
	ID              string
	DisplayName     string
	ToolchainVersion string
	Suffix          string
	Compiled        bool
	// Recipe is the run command template. Each element may contain the
	// literal placeholder "{file}", substituted with the absolute path
	// of the generated source file. No other placeholders are honored.
	Recipe          []string
	DefaultPackages []string
}

var (
	once  sync.Once
	table []Descriptor
	byID  map[string]Descriptor
)

func build() {
	table = []Descriptor{
		{ID: "python", DisplayName: "Python", ToolchainVersion: "3.12", Suffix: ".py", Recipe: []string{"python3", "{file}"}, DefaultPackages: []string{"requests", "numpy"}},
		{ID: "javascript", DisplayName: "JavaScript", ToolchainVersion: "20.x", Suffix: ".js", Recipe: []string{"node", "{file}"}, DefaultPackages: []string{"axios"}},
		{ID: "typescript", DisplayName: "TypeScript", ToolchainVersion: "5.4", Suffix: ".ts", Recipe: []string{"ts-node", "{file}"}, DefaultPackages: []string{"typescript", "ts-node"}},
		{ID: "php", DisplayName: "PHP", ToolchainVersion: "8.3", Suffix: ".php", Recipe: []string{"php", "{file}"}},
		{ID: "perl", DisplayName: "Perl", ToolchainVersion: "5.38", Suffix: ".pl", Recipe: []string{"perl", "{file}"}},
		{ID: "ruby", DisplayName: "Ruby", ToolchainVersion: "3.3", Suffix: ".rb", Recipe: []string{"ruby", "{file}"}},
		{ID: "lua", DisplayName: "Lua", ToolchainVersion: "5.4", Suffix: ".lua", Recipe: []string{"lua", "{file}"}},
		{ID: "go", DisplayName: "Go", ToolchainVersion: "1.22", Suffix: ".go", Recipe: []string{"go", "run", "{file}"}},
		{ID: "objc", DisplayName: "Objective-C", ToolchainVersion: "clang-16", Suffix: ".m", Recipe: []string{"sh", "-c", "clang -fobjc-arc {file} -o {file}.out -lobjc && {file}.out"}},
		{ID: "c", DisplayName: "C", ToolchainVersion: "gcc-13", Suffix: ".c", Compiled: true, Recipe: []string{"sh", "-c", "gcc {file} -o {file}.out && {file}.out"}},
		{ID: "cpp", DisplayName: "C++", ToolchainVersion: "gcc-13", Suffix: ".cpp", Compiled: true, Recipe: []string{"sh", "-c", "g++ -std=c++20 {file} -o {file}.out && {file}.out"}},
		{ID: "rust", DisplayName: "Rust", ToolchainVersion: "1.77", Suffix: ".rs", Compiled: true, Recipe: []string{"sh", "-c", "rustc {file} -o {file}.out && {file}.out"}},
		{ID: "swift", DisplayName: "Swift", ToolchainVersion: "5.10", Suffix: ".swift", Compiled: true, Recipe: []string{"sh", "-c", "swiftc {file} -o {file}.out && {file}.out"}},
		{ID: "csharp", DisplayName: "C#", ToolchainVersion: "dotnet-8", Suffix: ".cs", Compiled: true, Recipe: []string{"sh", "-c", "csc /nologo /out:{file}.exe {file} && mono {file}.exe"}},
		{ID: "java", DisplayName: "Java", ToolchainVersion: "21", Suffix: ".java", Compiled: true, Recipe: []string{"sh", "-c", "javac {file} && java -cp $(dirname {file}) $(basename {file} .java)"}},
	}

	byID = make(map[string]Descriptor, len(table))
	for _, d := range table {
		byID[d.ID] = d
	}
}

// Lookup returns the descriptor for id, matched case-sensitively, and
// whether it was found.
func Lookup(id string) (Descriptor, bool) {
	once.Do(build)
	d, ok := byID[id]
	return d, ok
}

// All returns the full set of descriptors in a stable, fixed order.
func All() []Descriptor {
	once.Do(build)
	out := make([]Descriptor, len(table))
	copy(out, table)
	return out
}
