package rowstore

type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpIn  Operator = "in"
	OpLt  Operator = "lt"
	OpGt  Operator = "gt"
)

type Condition struct {
	Column   string
	Operator Operator
	Value    any
}

type Order struct {
	Column string
	Desc   bool
}

// Query is an immutable filter/sort/pagination description. The zero value
// selects every row.
type Query struct {
	Conditions []Condition
	Orders     []Order
	Limit      int
	Offset     int
}

func Where(column string, value any) Query {
	return Query{}.And(column, value)
}

func (q Query) with(c Condition) Query {
	conditions := make([]Condition, 0, len(q.Conditions)+1)
	conditions = append(conditions, q.Conditions...)
	q.Conditions = append(conditions, c)
	return q
}

func (q Query) And(column string, value any) Query {
	return q.with(Condition{Column: column, Operator: OpEq, Value: value})
}

func (q Query) Not(column string, value any) Query {
	return q.with(Condition{Column: column, Operator: OpNeq, Value: value})
}

// In accepts a slice value.
func (q Query) In(column string, values any) Query {
	return q.with(Condition{Column: column, Operator: OpIn, Value: values})
}

func (q Query) Lt(column string, value any) Query {
	return q.with(Condition{Column: column, Operator: OpLt, Value: value})
}

func (q Query) Gt(column string, value any) Query {
	return q.with(Condition{Column: column, Operator: OpGt, Value: value})
}

func (q Query) OrderBy(column string, desc bool) Query {
	orders := make([]Order, 0, len(q.Orders)+1)
	orders = append(orders, q.Orders...)
	q.Orders = append(orders, Order{Column: column, Desc: desc})
	return q
}

func (q Query) Page(limit, offset int) Query {
	q.Limit = limit
	q.Offset = offset
	return q
}
