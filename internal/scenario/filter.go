package scenario

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

// Filter applies a scenario's transaction predicates. Each predicate is a CEL
// expression over the map variable trxn; a transaction must satisfy all of them.
type Filter struct {
	exprs    []string
	programs []cel.Program
}

var filterEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("trxn", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create CEL environment: %v", err))
	}
	filterEnv = env
}

// NewFilter compiles the active predicates of a scenario
func NewFilter(scenarioID string, exprs []string) (*Filter, error) {
	f := &Filter{}
	for _, expr := range exprs {
		ast, issues := filterEnv.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, domain.NewConfigurationError("FILTER_INVALID",
				fmt.Sprintf("scenario %s: filter %q does not compile", scenarioID, expr)).WithCause(issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, domain.NewConfigurationError("FILTER_INVALID",
				fmt.Sprintf("scenario %s: filter %q must evaluate to bool, got %s", scenarioID, expr, ast.OutputType()))
		}
		prg, err := filterEnv.Program(ast)
		if err != nil {
			return nil, domain.NewConfigurationError("FILTER_INVALID",
				fmt.Sprintf("scenario %s: filter %q", scenarioID, expr)).WithCause(err)
		}
		f.exprs = append(f.exprs, expr)
		f.programs = append(f.programs, prg)
	}
	return f, nil
}

// Empty returns true when the filter accepts everything
func (f *Filter) Empty() bool {
	return len(f.programs) == 0
}

func activation(tx domain.Transaction) map[string]any {
	return map[string]any{
		"trxn": map[string]any{
			"id":            tx.ID,
			"account_id":    tx.AccountID,
			"customer_id":   tx.CustomerID,
			"amount":        tx.Amount,
			"type_code":     tx.TypeCode,
			"channel":       tx.Channel,
			"credit_debit":  tx.CreditDebit,
			"party_country": tx.Counterparty.Country,
			"high_risk":     tx.HighRisk,
			"internal":      tx.Counterparty.Internal,
			"cross_border":  tx.CrossBorder,
			"customer_type": string(tx.Owner.CustomerType),
			"customer_risk": string(tx.Owner.RiskTier),
		},
	}
}

// Match evaluates every predicate against tx
func (f *Filter) Match(tx domain.Transaction) (bool, error) {
	if f.Empty() {
		return true, nil
	}
	vars := activation(tx)
	for i, prg := range f.programs {
		out, _, err := prg.Eval(vars)
		if err != nil {
			return false, domain.NewComputationError("FILTER_EVAL",
				fmt.Sprintf("filter %q on transaction %s", f.exprs[i], tx.ID)).WithCause(err)
		}
		b, ok := out.(types.Bool)
		if !ok {
			return false, domain.NewComputationError("FILTER_EVAL",
				fmt.Sprintf("filter %q returned %s, not bool", f.exprs[i], out.Type().TypeName()))
		}
		if !b {
			return false, nil
		}
	}
	return true, nil
}

// Apply returns the transactions that satisfy every predicate
func (f *Filter) Apply(txs []domain.Transaction) ([]domain.Transaction, error) {
	if f.Empty() {
		return txs, nil
	}
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		ok, err := f.Match(tx)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, tx)
		}
	}
	return out, nil
}
