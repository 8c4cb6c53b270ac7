package graph

import (
	"regexp"
	"strings"
)

// Solidity has no grammar in the tree-sitter bindings this module uses, so
// it gets a hand-written lexical front end instead of a parse-tree walk.
// The extractor works line by line over a comment/string-masked copy of the
// source, tracking brace depth to know whether it is at file level, inside
// a contract body, or inside a function body. It emits the same three
// streams as the tree-sitter extractors.

var (
	solContractRe = regexp.MustCompile(`^\s*(abstract\s+)?(contract|library|interface)\s+([A-Za-z_$][\w$]*)`)
	solFunctionRe = regexp.MustCompile(`^\s*function\s+([A-Za-z_$][\w$]*)\s*\(`)
	solSpecialRe  = regexp.MustCompile(`^\s*(constructor|fallback|receive)\s*\(`)
	solModifierRe = regexp.MustCompile(`^\s*modifier\s+([A-Za-z_$][\w$]*)`)
	solEventRe    = regexp.MustCompile(`^\s*event\s+([A-Za-z_$][\w$]*)\s*\(`)
	solErrorRe    = regexp.MustCompile(`^\s*error\s+([A-Za-z_$][\w$]*)\s*\(`)
	solStructRe   = regexp.MustCompile(`^\s*struct\s+([A-Za-z_$][\w$]*)`)
	solEnumRe     = regexp.MustCompile(`^\s*enum\s+([A-Za-z_$][\w$]*)`)

	// import "./a.sol"; / import "./a.sol" as NS;
	solImportPlainRe = regexp.MustCompile(`^\s*import\s+["']([^"']+)["']\s*(?:as\s+([A-Za-z_$][\w$]*))?\s*;`)
	// import {A, B as C} from "./a.sol";
	solImportNamedRe = regexp.MustCompile(`^\s*import\s*\{([^}]*)\}\s*from\s*["']([^"']+)["']\s*;`)
	// import * as NS from "./a.sol";
	solImportStarRe = regexp.MustCompile(`^\s*import\s*\*\s*as\s+([A-Za-z_$][\w$]*)\s+from\s*["']([^"']+)["']\s*;`)

	// type name [visibility...] varName [= ...];  — checked only at contract
	// body depth, after the declaration keywords above have been ruled out.
	solStateVarRe = regexp.MustCompile(`^\s*([A-Za-z_$][\w$\[\]\.]*)((?:\s+(?:public|private|internal|constant|immutable|override|payable))*)\s+([A-Za-z_$][\w$]*)\s*(?:=[^;]*)?;`)
	// mapping types carry parenthesized key/value spans the plain rule can't express
	solMappingVarRe = regexp.MustCompile(`^\s*mapping\s*\([^;]*\)((?:\s+(?:public|private|internal))*)\s+([A-Za-z_$][\w$]*)\s*;`)

	solIdentRe = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)

	solCallRe = regexp.MustCompile(`(?:\bnew\s+)?([A-Za-z_$][\w$\.]*)\s*\(`)

	solKeywords = map[string]bool{
		"if": true, "for": true, "while": true, "do": true, "else": true,
		"return": true, "returns": true, "emit": true, "revert": true,
		"unchecked": true, "assembly": true, "catch": true, "try": true,
		"function": true, "modifier": true, "constructor": true,
		"fallback": true, "receive": true, "event": true, "error": true,
		"mapping": true, "using": true, "pragma": true, "import": true,
		"contract": true, "library": true, "interface": true, "struct": true,
		"enum": true, "type": true, "address": true, "payable": true,
	}

	// statement-shaped first tokens that must not be read as a state
	// variable's type at contract-body depth
	solStmtKeywords = map[string]bool{
		"using": true, "return": true, "emit": true, "revert": true,
		"delete": true, "throw": true, "continue": true, "break": true,
		"require": true, "assert": true,
	}

	solVisibilityTokens = []string{
		"public", "private", "internal", "external", "payable", "view",
		"pure", "virtual", "override", "constant", "immutable",
	}
)

type solFrame struct {
	symbolID string
	name     string
	kind     Kind
	depth    int // brace depth at which the frame's body opened
}

// walkSolidity drives the lexical scan for one file. The scan runs twice:
// the first pass emits symbols and imports, the second records call sites,
// so a callee declared later in the file still resolves to its symbol id.
// Symbol ids derive deterministically from (path, qualified name, kind),
// which is what lets the second pass recompute frames without re-emitting.
func (f *fileExtraction) walkSolidity() {
	src := string(f.source)
	lines := strings.Split(src, "\n")
	maskedLines := strings.Split(maskSolidity(src), "\n")

	f.solidityPass(lines, maskedLines, true)
	f.solidityPass(lines, maskedLines, false)
}

func (f *fileExtraction) solidityPass(lines, maskedLines []string, declPass bool) {
	depth := 0
	var contract *solFrame
	var fn *solFrame
	var enumFrame *solFrame

	for i, line := range maskedLines {
		lineNo := i + 1

		if isImport := f.solImport(lines[i], lineNo, declPass); isImport {
			depth += braceDelta(line)
			continue
		}

		switch {
		case fn == nil && enumFrame == nil && solContractRe.MatchString(line):
			m := solContractRe.FindStringSubmatch(line)
			contract = f.solContract(m, lines, i, depth, declPass)
		case contract != nil && fn == nil && depth == contract.depth+1:
			fn, enumFrame = f.solContractMember(line, lines, i, contract, declPass)
		case contract == nil && fn == nil && enumFrame == nil:
			fn = f.solFileLevelDecl(line, lines, i, declPass)
		}

		if declPass && enumFrame != nil && depth >= enumFrame.depth {
			f.solEnumMembers(line, lineNo, enumFrame)
		}

		if !declPass && fn != nil && depth > fn.depth {
			f.solCalls(line, lineNo, fn, contract)
		}

		depth += braceDelta(line)

		if enumFrame != nil && depth <= enumFrame.depth {
			enumFrame = nil
		}
		if fn != nil && depth <= fn.depth {
			fn = nil
		}
		if contract != nil && depth <= contract.depth {
			contract = nil
		}
	}
}

// solContract emits the contract/library/interface symbol and returns its frame.
func (f *fileExtraction) solContract(m []string, lines []string, i, depth int, declPass bool) *solFrame {
	keyword := m[2]
	name := m[3]

	kind := KindClass
	var mods []string
	switch keyword {
	case "interface":
		kind = KindInterface
		mods = append(mods, "interface")
	case "library":
		mods = append(mods, "library")
	}
	if strings.TrimSpace(m[1]) == "abstract" {
		mods = append(mods, "abstract")
	}

	id := f.symbolID(name, kind)
	f.byName[name] = id
	if declPass {
		f.addSymbol(&Symbol{
			ID:            id,
			Name:          name,
			Kind:          kind,
			StartLine:     i + 1,
			EndLine:       i + 1,
			IsExported:    true,
			Signature:     firstLine(sigUpTo(lines[i], '{')),
			Documentation: solDoc(lines, i),
			Modifiers:     mods,
		})
	}
	return &solFrame{symbolID: id, name: name, kind: kind, depth: depth}
}

// solContractMember handles one line at contract-body depth: functions,
// constructor/fallback/receive, modifiers, events, custom errors, structs,
// enums, and state variables. It returns the new function frame (when the
// member opens a body) and the new enum frame, either of which may be nil.
func (f *fileExtraction) solContractMember(line string, lines []string, i int, contract *solFrame, declPass bool) (*solFrame, *solFrame) {
	lineNo := i + 1
	depthHere := contract.depth + 1

	emit := func(name string, kind Kind, mods []string, exported bool, sig string, parent *solFrame) string {
		qualified := name
		if parent != nil {
			qualified = parent.name + "." + name
		}
		id := f.symbolID(qualified, kind)
		f.byName[qualified] = id
		if !declPass {
			return id
		}
		sym := &Symbol{
			ID:            id,
			Name:          name,
			Kind:          kind,
			StartLine:     lineNo,
			EndLine:       lineNo,
			IsExported:    exported,
			Signature:     sig,
			Documentation: solDoc(lines, i),
			Modifiers:     mods,
		}
		if parent != nil {
			sym.ParentID = parent.symbolID
		}
		f.addSymbol(sym)
		return id
	}

	switch {
	case solFunctionRe.MatchString(line):
		name := solFunctionRe.FindStringSubmatch(line)[1]
		mods := solVisibility(line)
		id := emit(name, KindMethod, mods, solIsExported(mods), firstLine(sigUpTo(lines[i], '{')), contract)
		if strings.Contains(line, "{") || !strings.Contains(line, ";") {
			return &solFrame{symbolID: id, name: contract.name + "." + name, kind: KindMethod, depth: depthHere}, nil
		}
		return nil, nil

	case solSpecialRe.MatchString(line):
		name := solSpecialRe.FindStringSubmatch(line)[1]
		mods := solVisibility(line)
		id := emit(name, KindMethod, mods, name != "constructor", firstLine(sigUpTo(lines[i], '{')), contract)
		return &solFrame{symbolID: id, name: contract.name + "." + name, kind: KindMethod, depth: depthHere}, nil

	case solModifierRe.MatchString(line):
		name := solModifierRe.FindStringSubmatch(line)[1]
		id := emit(name, KindFunction, []string{"modifier"}, false, firstLine(sigUpTo(lines[i], '{')), contract)
		return &solFrame{symbolID: id, name: contract.name + "." + name, kind: KindFunction, depth: depthHere}, nil

	case solEventRe.MatchString(line):
		name := solEventRe.FindStringSubmatch(line)[1]
		emit(name, KindEvent, nil, true, firstLine(sigUpTo(lines[i], '{')), contract)

	case solErrorRe.MatchString(line):
		name := solErrorRe.FindStringSubmatch(line)[1]
		emit(name, KindTypeAlias, []string{"error"}, true, firstLine(sigUpTo(lines[i], '{')), contract)

	case solStructRe.MatchString(line):
		name := solStructRe.FindStringSubmatch(line)[1]
		emit(name, KindClass, []string{"struct"}, true, "struct "+name, contract)

	case solEnumRe.MatchString(line):
		name := solEnumRe.FindStringSubmatch(line)[1]
		id := emit(name, KindEnum, nil, true, "enum "+name, contract)
		return nil, &solFrame{symbolID: id, name: contract.name + "." + name, kind: KindEnum, depth: depthHere}

	case solMappingVarRe.MatchString(line):
		m := solMappingVarRe.FindStringSubmatch(line)
		mods := solVisibility(line)
		emit(m[2], KindProperty, mods, solIsExported(mods), firstLine(strings.TrimSuffix(strings.TrimSpace(lines[i]), ";")), contract)

	case solStateVarRe.MatchString(line):
		m := solStateVarRe.FindStringSubmatch(line)
		if !solStmtKeywords[m[1]] {
			mods := solVisibility(line)
			emit(m[3], KindProperty, mods, solIsExported(mods), firstLine(strings.TrimSuffix(strings.TrimSpace(lines[i]), ";")), contract)
		}
	}
	return nil, nil
}

// solFileLevelDecl handles free functions and custom errors declared
// outside any contract (allowed since Solidity 0.6/0.8). File-level
// structs and enums are not recorded.
func (f *fileExtraction) solFileLevelDecl(line string, lines []string, i int, declPass bool) *solFrame {
	lineNo := i + 1

	switch {
	case solFunctionRe.MatchString(line):
		name := solFunctionRe.FindStringSubmatch(line)[1]
		id := f.symbolID(name, KindFunction)
		f.byName[name] = id
		if declPass {
			f.addSymbol(&Symbol{
				ID:            id,
				Name:          name,
				Kind:          KindFunction,
				StartLine:     lineNo,
				EndLine:       lineNo,
				IsExported:    true,
				Signature:     firstLine(sigUpTo(lines[i], '{')),
				Documentation: solDoc(lines, i),
				Modifiers:     solVisibility(line),
			})
		}
		return &solFrame{symbolID: id, name: name, kind: KindFunction, depth: 0}

	case solErrorRe.MatchString(line):
		name := solErrorRe.FindStringSubmatch(line)[1]
		id := f.symbolID(name, KindTypeAlias)
		f.byName[name] = id
		if declPass {
			f.addSymbol(&Symbol{
				ID:         id,
				Name:       name,
				Kind:       KindTypeAlias,
				StartLine:  lineNo,
				EndLine:    lineNo,
				IsExported: true,
				Signature:  firstLine(sigUpTo(lines[i], '{')),
				Modifiers:  []string{"error"},
			})
		}
	}
	return nil
}

// solEnumMembers emits one enum_member per bare identifier on a line
// inside an enum body.
func (f *fileExtraction) solEnumMembers(line string, lineNo int, enumFrame *solFrame) {
	body := line
	if idx := strings.IndexByte(body, '{'); idx >= 0 {
		body = body[idx+1:]
	}
	if idx := strings.IndexByte(body, '}'); idx >= 0 {
		body = body[:idx]
	}
	for _, part := range strings.Split(body, ",") {
		name := strings.TrimSpace(part)
		if name == "" || !solIdentRe.MatchString(name) {
			continue
		}
		id := f.symbolID(enumFrame.name+"."+name, KindEnumMember)
		f.addSymbol(&Symbol{
			ID:         id,
			Name:       name,
			Kind:       KindEnumMember,
			StartLine:  lineNo,
			EndLine:    lineNo,
			IsExported: true,
			ParentID:   enumFrame.symbolID,
		})
	}
}

// solCalls records call sites inside a function or modifier body.
func (f *fileExtraction) solCalls(line string, lineNo int, fn *solFrame, contract *solFrame) {
	for _, loc := range solCallRe.FindAllStringSubmatchIndex(line, -1) {
		full := line[loc[0]:loc[1]]
		callee := line[loc[2]:loc[3]]

		isNew := strings.HasPrefix(strings.TrimSpace(full), "new ")
		receiver := ""
		name := callee
		if idx := strings.LastIndexByte(callee, '.'); idx >= 0 {
			receiver = callee[:idx]
			name = callee[idx+1:]
		} else if loc[2] > 0 && line[loc[2]-1] == '.' {
			// chained call: the receiver ends in ')' so the regex could not
			// swallow it; render it as name() per the dotted-path convention
			receiver = solChainedReceiver(line[:loc[2]-1])
		}
		if solKeywords[name] && !isNew {
			continue
		}

		callType := CallTypeFunction
		switch {
		case isNew:
			callType = CallTypeConstructor
		case receiver != "":
			callType = CallTypeMethod
		}

		callerID := fn.symbolID
		calleeID := ""
		if id, ok := f.byName[name]; ok && receiver == "" {
			calleeID = id
		} else if contract != nil {
			if id, ok := f.byName[contract.name+"."+name]; ok && receiver == "" {
				calleeID = id
			}
		}

		f.addCall(&CallEdge{
			ID:           callEdgeID(f.relPath, lineNo, loc[2], name),
			CallerID:     callerID,
			CalleeName:   name,
			CalleeID:     calleeID,
			Line:         lineNo,
			Column:       loc[2],
			IsMethodCall: callType == CallTypeMethod,
			Receiver:     receiver,
			CallType:     callType,
			ArgCount:     solArgCount(line[loc[1]-1:]),
		})
	}
}

// solImport handles the three import statement shapes. Returns true when
// the line was an import; dependencies are only recorded on the
// declaration pass.
func (f *fileExtraction) solImport(line string, lineNo int, declPass bool) bool {
	if !declPass {
		return solImportStarRe.MatchString(line) || solImportNamedRe.MatchString(line) || solImportPlainRe.MatchString(line)
	}
	if m := solImportStarRe.FindStringSubmatch(line); m != nil {
		f.addDependency(&Dependency{
			ID:           dependencyID(f.relPath, lineNo, m[2]),
			TargetModule: m[2],
			Kind:         DependencyImport,
			Names:        []ImportedName{{Name: "*", Alias: m[1], IsNamespace: true}},
			SourceLine:   lineNo,
			IsExternal:   solIsExternal(m[2]),
		})
		return true
	}
	if m := solImportNamedRe.FindStringSubmatch(line); m != nil {
		var names []ImportedName
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name := part
			alias := ""
			if fields := strings.Fields(part); len(fields) == 3 && fields[1] == "as" {
				name, alias = fields[0], fields[2]
			}
			names = append(names, ImportedName{Name: name, Alias: alias})
		}
		f.addDependency(&Dependency{
			ID:           dependencyID(f.relPath, lineNo, m[2]),
			TargetModule: m[2],
			Kind:         DependencyImport,
			Names:        names,
			SourceLine:   lineNo,
			IsExternal:   solIsExternal(m[2]),
		})
		return true
	}
	if m := solImportPlainRe.FindStringSubmatch(line); m != nil {
		var names []ImportedName
		if m[2] != "" {
			names = []ImportedName{{Name: "*", Alias: m[2], IsNamespace: true}}
		}
		f.addDependency(&Dependency{
			ID:           dependencyID(f.relPath, lineNo, m[1]),
			TargetModule: m[1],
			Kind:         DependencyImport,
			Names:        names,
			SourceLine:   lineNo,
			IsExternal:   solIsExternal(m[1]),
		})
		return true
	}
	return false
}

// solChainedReceiver renders the receiver expression preceding a ".call("
// when it ends in a call or index: IVault(addr).deposit() yields "IVault()".
func solChainedReceiver(upToDot string) string {
	i := len(upToDot) - 1
	suffix := ""
	if i >= 0 && (upToDot[i] == ')' || upToDot[i] == ']') {
		open, close := byte('('), upToDot[i]
		if close == ']' {
			open = '['
		}
		depth := 0
		for ; i >= 0; i-- {
			switch upToDot[i] {
			case close:
				depth++
			case open:
				depth--
			}
			if depth == 0 {
				break
			}
		}
		i--
		suffix = string(open) + string(close)
	}
	end := i + 1
	for i >= 0 && (isSolIdentByte(upToDot[i]) || upToDot[i] == '.') {
		i--
	}
	if i+1 >= end {
		return ""
	}
	return upToDot[i+1:end] + suffix
}

func isSolIdentByte(b byte) bool {
	return b == '_' || b == '$' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func solIsExternal(module string) bool {
	return !strings.HasPrefix(module, "./") && !strings.HasPrefix(module, "../") && !strings.HasPrefix(module, "/")
}

// solVisibility collects the modifier tokens present on a declaration line.
func solVisibility(line string) []string {
	present := map[string]bool{}
	start := -1
	for i := 0; i <= len(line); i++ {
		if i < len(line) && isSolIdentByte(line[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			present[line[start:i]] = true
			start = -1
		}
	}
	var mods []string
	for _, tok := range solVisibilityTokens {
		if present[tok] {
			mods = append(mods, tok)
		}
	}
	return mods
}

// solIsExported reports whether a member's visibility tokens make it
// reachable from outside the contract. No explicit visibility defaults to
// public for state variables pre-0.5 sources; treating it as unexported
// here errs toward fewer false "exported" marks.
func solIsExported(mods []string) bool {
	for _, m := range mods {
		if m == "public" || m == "external" {
			return true
		}
	}
	return false
}

// solDoc collects the natspec comment immediately above line i: contiguous
// `///` lines, or the body of a `/** ... */` block.
func solDoc(lines []string, i int) string {
	var doc []string
	j := i - 1
	for j >= 0 {
		t := strings.TrimSpace(lines[j])
		if strings.HasPrefix(t, "///") {
			doc = append([]string{strings.TrimSpace(strings.TrimPrefix(t, "///"))}, doc...)
			j--
			continue
		}
		break
	}
	if len(doc) > 0 {
		return strings.Join(doc, "\n")
	}

	// block natspec ending on the previous line
	if j >= 0 && strings.HasSuffix(strings.TrimSpace(lines[j]), "*/") {
		var block []string
		for ; j >= 0; j-- {
			t := strings.TrimSpace(lines[j])
			t = strings.TrimSuffix(t, "*/")
			t = strings.TrimPrefix(t, "/**")
			t = strings.TrimPrefix(t, "/*")
			t = strings.TrimPrefix(t, "*")
			if s := strings.TrimSpace(t); s != "" {
				block = append([]string{s}, block...)
			}
			if strings.HasPrefix(strings.TrimSpace(lines[j]), "/*") {
				return strings.Join(block, "\n")
			}
		}
	}
	return ""
}

// solArgCount counts top-level commas in the argument span starting at the
// opening paren. An empty span is zero arguments.
func solArgCount(fromParen string) int {
	depth := 0
	args := 0
	sawContent := false
	for _, r := range fromParen {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				if sawContent {
					args++
				}
				return args
			}
		case ',':
			if depth == 1 {
				args++
				sawContent = false
			}
		default:
			if depth >= 1 && r != ' ' && r != '\t' {
				sawContent = true
			}
		}
	}
	return args
}

// braceDelta is the net brace depth change contributed by a masked line.
func braceDelta(line string) int {
	return strings.Count(line, "{") - strings.Count(line, "}")
}

// maskSolidity blanks string literals and comments so the structural pass
// never reacts to braces or keywords inside them. Line lengths and byte
// offsets are preserved.
func maskSolidity(src string) string {
	out := []byte(src)
	n := len(out)
	i := 0
	for i < n {
		switch {
		case out[i] == '/' && i+1 < n && out[i+1] == '/':
			for i < n && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case out[i] == '/' && i+1 < n && out[i+1] == '*':
			for i < n {
				if out[i] == '*' && i+1 < n && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i += 2
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
		case out[i] == '"' || out[i] == '\'':
			quote := out[i]
			i++
			for i < n && out[i] != quote && out[i] != '\n' {
				if out[i] == '\\' {
					out[i] = ' '
					i++
				}
				if i < n && out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
			if i < n && out[i] == quote {
				i++
			}
		default:
			i++
		}
	}
	return string(out)
}
