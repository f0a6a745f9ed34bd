package translator

import (
	"fmt"

	"github.com/leapstack-labs/fhirsql/pkg/fhirpath"
)

// FunctionID identifies a supported FHIRPath function.
type FunctionID int

// Function identifiers. The table below must have an entry for every one.
const (
	// existence
	FnEmpty FunctionID = iota
	FnExists
	FnAll
	FnAllTrue
	FnAnyTrue
	FnAllFalse
	FnAnyFalse
	FnSubsetOf
	FnSupersetOf
	FnCount
	FnDistinct
	FnIsDistinct

	// filtering and projection
	FnWhere
	FnSelect
	FnOfType
	FnAggregate

	// subsetting
	FnSingle
	FnFirst
	FnLast
	FnTail
	FnSkip
	FnTake
	FnIntersect
	FnExclude

	// combining
	FnUnion
	FnCombine

	// conversion
	FnIif
	FnToBoolean
	FnConvertsToBoolean
	FnToInteger
	FnConvertsToInteger
	FnToDecimal
	FnConvertsToDecimal
	FnToString
	FnConvertsToString
	FnToQuantity
	FnConvertsToQuantity
	FnToDate
	FnConvertsToDate
	FnToDateTime
	FnConvertsToDateTime
	FnToTime
	FnConvertsToTime

	// strings
	FnIndexOf
	FnSubstring
	FnStartsWith
	FnEndsWith
	FnContains
	FnUpper
	FnLower
	FnReplace
	FnMatches
	FnReplaceMatches
	FnLength
	FnToChars
	FnTrim
	FnSplit
	FnJoin

	// math
	FnAbs
	FnCeiling
	FnFloor
	FnRound
	FnTruncate
	FnSum
	FnMin
	FnMax
	FnAvg

	// types
	FnIs
	FnAs

	// utility
	FnNot
	FnTrace
	FnNow
	FnToday
	FnTimeOfDay
	FnHasValue

	numFunctions
)

// Impl translates one call. focus is the value the function is invoked on.
type Impl func(t *Translator, focus value, call *fhirpath.Invocation) (value, error)

// FunctionSpec describes one function.
type FunctionSpec struct {
	ID      FunctionID
	Name    string
	MinArgs int
	MaxArgs int
	// Lambda functions evaluate their arguments once per focus item.
	Lambda bool
	// Boundary is the CTE boundary category of the function on the main
	// path of an expression, or "" when the call folds into the current CTE.
	Boundary string
	Impl     Impl
}

var (
	functionTable [numFunctions]FunctionSpec
	functionIDs   map[string]FunctionID
)

func init() {
	specs := []FunctionSpec{
		{FnEmpty, "empty", 0, 0, false, boundaryAggregate, fnEmpty},
		{FnExists, "exists", 0, 1, true, boundaryAggregate, fnExists},
		{FnAll, "all", 1, 1, true, boundaryAggregate, fnAll},
		{FnAllTrue, "allTrue", 0, 0, false, boundaryAggregate, boolAggregate(true, "true")},
		{FnAnyTrue, "anyTrue", 0, 0, false, boundaryAggregate, boolAggregate(false, "true")},
		{FnAllFalse, "allFalse", 0, 0, false, boundaryAggregate, boolAggregate(true, "false")},
		{FnAnyFalse, "anyFalse", 0, 0, false, boundaryAggregate, boolAggregate(false, "false")},
		{FnSubsetOf, "subsetOf", 1, 1, false, boundaryAggregate, fnSubsetOf},
		{FnSupersetOf, "supersetOf", 1, 1, false, boundaryAggregate, fnSupersetOf},
		{FnCount, "count", 0, 0, false, boundaryAggregate, fnCount},
		{FnDistinct, "distinct", 0, 0, false, boundaryFilter, fnDistinct},
		{FnIsDistinct, "isDistinct", 0, 0, false, boundaryAggregate, fnIsDistinct},

		{FnWhere, "where", 1, 1, true, boundaryFilter, fnWhere},
		{FnSelect, "select", 1, 1, true, boundaryFilter, fnSelect},
		{FnOfType, "ofType", 1, 1, false, "", fnOfType},
		{FnAggregate, "aggregate", 1, 2, true, boundaryAggregate, fnAggregate},

		{FnSingle, "single", 0, 0, false, boundarySlice, fnSingle},
		{FnFirst, "first", 0, 0, false, boundarySlice, fnFirst},
		{FnLast, "last", 0, 0, false, boundarySlice, fnLast},
		{FnTail, "tail", 0, 0, false, boundarySlice, fnTail},
		{FnSkip, "skip", 1, 1, false, boundarySlice, fnSkip},
		{FnTake, "take", 1, 1, false, boundarySlice, fnTake},
		{FnIntersect, "intersect", 1, 1, false, boundaryFilter, fnIntersect},
		{FnExclude, "exclude", 1, 1, false, boundaryFilter, fnExclude},

		{FnUnion, "union", 1, 1, false, boundaryCombine, fnUnion},
		{FnCombine, "combine", 1, 1, false, boundaryCombine, fnUnion},

		{FnIif, "iif", 2, 3, false, "", fnIif},
		{FnToBoolean, "toBoolean", 0, 0, false, "", fnToBoolean},
		{FnConvertsToBoolean, "convertsToBoolean", 0, 0, false, "", convertsTo(FnToBoolean)},
		{FnToInteger, "toInteger", 0, 0, false, "", fnToInteger},
		{FnConvertsToInteger, "convertsToInteger", 0, 0, false, "", convertsTo(FnToInteger)},
		{FnToDecimal, "toDecimal", 0, 0, false, "", fnToDecimal},
		{FnConvertsToDecimal, "convertsToDecimal", 0, 0, false, "", convertsTo(FnToDecimal)},
		{FnToString, "toString", 0, 0, false, "", fnToString},
		{FnConvertsToString, "convertsToString", 0, 0, false, "", convertsTo(FnToString)},
		{FnToQuantity, "toQuantity", 0, 1, false, "", fnToQuantity},
		{FnConvertsToQuantity, "convertsToQuantity", 0, 1, false, "", convertsTo(FnToQuantity)},
		{FnToDate, "toDate", 0, 0, false, "", fnToDate},
		{FnConvertsToDate, "convertsToDate", 0, 0, false, "", convertsTo(FnToDate)},
		{FnToDateTime, "toDateTime", 0, 0, false, "", fnToDateTime},
		{FnConvertsToDateTime, "convertsToDateTime", 0, 0, false, "", convertsTo(FnToDateTime)},
		{FnToTime, "toTime", 0, 0, false, "", fnToTime},
		{FnConvertsToTime, "convertsToTime", 0, 0, false, "", convertsTo(FnToTime)},

		{FnIndexOf, "indexOf", 1, 1, false, "", fnIndexOf},
		{FnSubstring, "substring", 1, 2, false, "", fnSubstring},
		{FnStartsWith, "startsWith", 1, 1, false, "", fnStartsWith},
		{FnEndsWith, "endsWith", 1, 1, false, "", fnEndsWith},
		{FnContains, "contains", 1, 1, false, "", fnContains},
		{FnUpper, "upper", 0, 0, false, "", stringFunc("upper")},
		{FnLower, "lower", 0, 0, false, "", stringFunc("lower")},
		{FnReplace, "replace", 2, 2, false, "", fnReplace},
		{FnMatches, "matches", 1, 1, false, "", fnMatches},
		{FnReplaceMatches, "replaceMatches", 2, 2, false, "", fnReplaceMatches},
		{FnLength, "length", 0, 0, false, "", fnLength},
		{FnToChars, "toChars", 0, 0, false, "", fnToChars},
		{FnTrim, "trim", 0, 0, false, "", stringFunc("trim")},
		{FnSplit, "split", 1, 1, false, "", fnSplit},
		{FnJoin, "join", 0, 1, false, boundaryAggregate, fnJoin},

		{FnAbs, "abs", 0, 0, false, "", fnAbs},
		{FnCeiling, "ceiling", 0, 0, false, "", roundingFunc("ceil")},
		{FnFloor, "floor", 0, 0, false, "", roundingFunc("floor")},
		{FnRound, "round", 0, 1, false, "", fnRound},
		{FnTruncate, "truncate", 0, 0, false, "", roundingFunc("trunc")},
		{FnSum, "sum", 0, 0, false, boundaryAggregate, fnSum},
		{FnMin, "min", 0, 0, false, boundaryAggregate, extremum("MIN")},
		{FnMax, "max", 0, 0, false, boundaryAggregate, extremum("MAX")},
		{FnAvg, "avg", 0, 0, false, boundaryAggregate, fnAvg},

		{FnIs, "is", 1, 1, false, "", fnIs},
		{FnAs, "as", 1, 1, false, "", fnOfType},

		{FnNot, "not", 0, 0, false, "", fnNot},
		{FnTrace, "trace", 1, 2, false, "", fnTrace},
		{FnNow, "now", 0, 0, false, "", fnNow},
		{FnToday, "today", 0, 0, false, "", fnToday},
		{FnTimeOfDay, "timeOfDay", 0, 0, false, "", fnTimeOfDay},
		{FnHasValue, "hasValue", 0, 0, false, "", fnHasValue},
	}

	functionIDs = make(map[string]FunctionID, len(specs))
	for _, s := range specs {
		functionTable[s.ID] = s
		functionIDs[s.Name] = s.ID
	}
	for id, s := range functionTable {
		if s.Impl == nil {
			panic(fmt.Sprintf("translator: function %d has no implementation", id))
		}
	}
}

// LookupFunction returns the spec of a function by its case-sensitive name.
func LookupFunction(name string) (FunctionSpec, bool) {
	id, ok := functionIDs[name]
	if !ok {
		return FunctionSpec{}, false
	}
	return functionTable[id], true
}

// Functions returns the names of all supported functions in table order.
func Functions() []string {
	names := make([]string, 0, numFunctions)
	for _, s := range functionTable {
		names = append(names, s.Name)
	}
	return names
}

// call dispatches an invocation. On the main path (chained) a boundary
// function first moves its focus into a CTE of its own.
func (t *Translator) call(n *fhirpath.Invocation, focus value, chained bool) (value, error) {
	spec, ok := LookupFunction(n.Name)
	if !ok {
		return value{}, newError(ErrUnknownFunction, n.Name, n.At, "no function named %q", n.Name)
	}
	if len(n.Args) < spec.MinArgs || len(n.Args) > spec.MaxArgs {
		return value{}, newError(ErrArity, n.Name, n.At, "expects %s, got %d", arity(spec), len(n.Args))
	}

	if chained && (spec.Boundary != "" || focus.boundary != "") {
		focus = t.cut(focus)
	}

	res, err := spec.Impl(t, focus, n)
	if err != nil {
		return value{}, err
	}
	res.fn = spec.Name
	res.boundary = ""
	if chained {
		res.boundary = spec.Boundary
	}
	return res, nil
}

func arity(s FunctionSpec) string {
	plural := func(n int) string {
		if n == 1 {
			return "1 argument"
		}
		return fmt.Sprintf("%d arguments", n)
	}
	switch {
	case s.MinArgs == s.MaxArgs:
		return plural(s.MinArgs)
	default:
		return fmt.Sprintf("%d to %s", s.MinArgs, plural(s.MaxArgs))
	}
}
