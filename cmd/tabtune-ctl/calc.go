package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"golang.design/x/clipboard"
)

// evalTimeout bounds a single expression; user input may loop forever.
const evalTimeout = 500 * time.Millisecond

// calcPrelude exposes math.* as globals (sqrt(2), pi) and blocks file and
// chunk loading.
const calcPrelude = `
for k, v in pairs(math) do _G[k] = v end
e = math.exp(1)
dofile, loadfile, load, loadstring, require, module = nil, nil, nil, nil, nil, nil
`

// Expressions cannot loop or define functions, which keeps each evaluation
// bounded in both time and memory.
var blockedKeyword = regexp.MustCompile(`\b(while|for|repeat|until|function|goto)\b`)

// Lua state limits. The registry holds every live stack value.
const (
	calcCallStackSize   = 64
	calcRegistrySize    = 256
	calcRegistryMaxSize = 4096
)

var bracketPairs = map[rune]rune{'(': ')', '[': ']', '{': '}'}

// balanceBrackets closes unmatched openers in reverse order and rewrites
// square and curly brackets to parentheses. A closer that does not match the
// innermost opener is left alone.
func balanceBrackets(expr string) string {
	var stack []rune
	for _, ch := range expr {
		if _, ok := bracketPairs[ch]; ok {
			stack = append(stack, ch)
			continue
		}
		if ch == ')' || ch == ']' || ch == '}' {
			if n := len(stack); n > 0 && bracketPairs[stack[n-1]] == ch {
				stack = stack[:n-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(expr)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteRune(bracketPairs[stack[i]])
	}
	return strings.NewReplacer("[", "(", "{", "(", "]", ")", "}", ")").Replace(b.String())
}

var errNotNumber = errors.New("expression is not a number")

// calcResult is one evaluated expression.
type calcResult struct {
	Value    float64
	Display  string // printed form, fraction suffix included
	Plain    string // value only, used for -copy
	Function bool   // expression named a function, e.g. "sqrt"
}

// evaluate balances and evaluates expr in a fresh sandboxed Lua state.
func evaluate(ctx context.Context, expr string) (calcResult, error) {
	if kw := blockedKeyword.FindString(expr); kw != "" {
		return calcResult{}, fmt.Errorf("%q is not allowed in expressions", kw)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:    true,
		CallStackSize:   calcCallStackSize,
		RegistrySize:    calcRegistrySize,
		RegistryMaxSize: calcRegistryMaxSize,
	})
	defer L.Close()

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return calcResult{}, fmt.Errorf("open %s: %w", lib.name, err)
		}
	}
	if err := L.DoString(calcPrelude); err != nil {
		return calcResult{}, fmt.Errorf("prelude: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()
	L.SetContext(ctx)

	src := "return " + balanceBrackets(expr)
	if err := L.DoString(src); err != nil {
		return calcResult{}, err
	}
	ret := L.Get(-1)
	L.Pop(1)

	switch v := ret.(type) {
	case lua.LNumber:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return calcResult{}, errNotNumber
		}
		plain := formatNumber(f)
		display := plain
		if n, d := toFraction(f); d != 1 {
			display += fmt.Sprintf(" (%d/%d)", n, d)
		}
		return calcResult{Value: f, Display: display, Plain: plain}, nil
	case *lua.LFunction:
		return calcResult{Display: "supported", Plain: "supported", Function: true}, nil
	}
	return calcResult{}, errNotNumber
}

func formatNumber(f float64) string {
	if math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Fraction search limits.
const (
	fractionMaxDen = 1_000_000
	fractionEps    = 1e-12
)

// toFraction approximates f by continued fractions. Values that need a
// denominator above fractionMaxDen come back as (round(f), 1).
func toFraction(f float64) (int64, int64) {
	if f == math.Trunc(f) || math.Abs(f) > 1e15 {
		return int64(math.Round(f)), 1
	}
	sign := int64(1)
	if f < 0 {
		sign, f = -1, -f
	}

	// Convergents h/k.
	h0, h1 := int64(0), int64(1)
	k0, k1 := int64(1), int64(0)
	x := f
	for range 64 {
		a := int64(math.Floor(x))
		h0, h1 = h1, a*h1+h0
		k0, k1 = k1, a*k1+k0
		if k1 > fractionMaxDen {
			h1, k1 = h0, k0
			break
		}
		if math.Abs(f-float64(h1)/float64(k1)) <= fractionEps*math.Max(1, f) {
			break
		}
		frac := x - float64(a)
		if frac < fractionEps {
			break
		}
		x = 1 / frac
	}
	if k1 == 0 || math.Abs(f-float64(h1)/float64(k1)) > 1e-9*math.Max(1, f) {
		return sign * int64(math.Round(f)), 1
	}
	return sign * h1, k1
}

// runCalc implements "calc [-copy] <expr...>". Empty input prints "..",
// failures print "..." like the interactive widget.
func runCalc(args []string, w io.Writer) error {
	copyResult := false
	if len(args) > 0 && (args[0] == "-copy" || args[0] == "--copy") {
		copyResult = true
		args = args[1:]
	}
	expr := strings.TrimSpace(strings.Join(args, " "))
	if expr == "" {
		fmt.Fprintln(w, "..")
		return nil
	}

	res, err := evaluate(context.Background(), expr)
	if err != nil {
		fmt.Fprintln(w, "...")
		return nil
	}
	fmt.Fprintln(w, res.Display)

	if copyResult {
		if err := clipboard.Init(); err != nil {
			return fmt.Errorf("clipboard unavailable: %w", err)
		}
		clipboard.Write(clipboard.FmtText, []byte(res.Plain))
		fmt.Fprintln(w, "Copied!")
	}
	return nil
}
