package orm

import (
	"context"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/startdusk/relorm/orm/internal/errs"
)

// throughKeyAlias 预加载 through 和多对多关联时, 额外查询出来用于匹配源记录的列
const throughKeyAlias = "relorm_key_"

// ReadonlySetter 实现了这个接口的记录在加载之后会被标记为只读
type ReadonlySetter interface {
	SetReadonly(readonly bool)
}

// Load 懒加载, 返回 *T 或者 []*T, 不会修改 source.
// 外键全部为 NULL 的时候直接返回空值, 不会查询数据库
func (r *Relation) Load(ctx context.Context, sess Session, source any) (any, error) {
	c := sess.getCore()
	if err := r.checkBound(c, source); err != nil {
		return nil, err
	}
	plan, err := r.prepare(c)
	if err != nil {
		return nil, err
	}
	vals, err := r.ownerValues(c, source, plan.ownerCols)
	if err != nil {
		return nil, err
	}
	if _, ok := keyOf(vals); !ok {
		return r.empty(), nil
	}

	sb, err := r.statement(c, plan, false)
	if err != nil {
		return nil, err
	}
	h := make(Hash, 0, len(vals))
	for i, col := range plan.condCols {
		h = append(h, Pair{Column: col, Value: vals[i]})
	}
	sb.Where(h)
	if err = r.applyScope(c, sb); err != nil {
		return nil, err
	}
	switch {
	case r.scope.limit > 0:
		sb.Limit(r.scope.limit)
	case !r.kind.Poly():
		sb.Limit(1)
	}
	if r.scope.offset > 0 {
		sb.Offset(r.scope.offset)
	}

	rows, err := fetch(ctx, sess, c, &QueryContext{
		Type:    opTypeSelect,
		Builder: sb,
		Model:   r.targetModel,
	})
	if err != nil {
		return nil, err
	}
	records, err := c.newRecords(r.targetModel, rows)
	if err != nil {
		return nil, err
	}
	r.markReadonly(records)
	if err = preload(ctx, sess, records, r.scope.include); err != nil {
		return nil, err
	}
	return r.value(records).Interface(), nil
}

// LoadRelation 懒加载 source 上名为 attr 的关联, 结果写回到对应的字段
func LoadRelation(ctx context.Context, sess Session, source any, attr string) error {
	c := sess.getCore()
	rel, err := relationOf(c, source, attr)
	if err != nil {
		return err
	}
	res, err := rel.Load(ctx, sess, source)
	if err != nil {
		return err
	}
	rel.field(source).Set(reflect.ValueOf(res))
	return nil
}

// LoadEagerly 一条语句加载所有源记录的关联, 再按照键分配回每个源记录.
// 同一条目标记录分给多个源记录的时候, 除了第一个, 其余的都拿到独立构造的副本.
// 没有匹配到的源记录会被显式地设置成 nil 或者空切片
func (r *Relation) LoadEagerly(ctx context.Context, sess Session, sources []any, includes []string) error {
	if len(sources) == 0 {
		return nil
	}
	c := sess.getCore()
	for _, src := range sources {
		if err := r.checkBound(c, src); err != nil {
			return err
		}
	}
	plan, err := r.prepare(c)
	if err != nil {
		return err
	}

	// 收集所有源记录的键, 去重
	keys := make([]string, len(sources))
	valid := make([]bool, len(sources))
	seen := make(map[string]struct{}, len(sources))
	var tuples [][]any
	for i, src := range sources {
		vals, err := r.ownerValues(c, src, plan.ownerCols)
		if err != nil {
			return err
		}
		keys[i], valid[i] = keyOf(vals)
		if !valid[i] {
			continue
		}
		if _, ok := seen[keys[i]]; ok {
			continue
		}
		seen[keys[i]] = struct{}{}
		tuples = append(tuples, vals)
	}
	if len(tuples) == 0 {
		for _, src := range sources {
			r.field(src).Set(reflect.ValueOf(r.empty()))
		}
		return nil
	}

	sb, err := r.statement(c, plan, true)
	if err != nil {
		return err
	}
	sb.Where(r.keysCondition(sb, plan.condCols, tuples))
	if err = r.applyScope(c, sb); err != nil {
		return err
	}
	rows, err := fetch(ctx, sess, c, &QueryContext{
		Type:    opTypeSelect,
		Builder: sb,
		Model:   r.targetModel,
	})
	if err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "orm: eager load",
		slog.String("model", r.ownerName()),
		slog.String("relation", r.attr),
		slog.Int("sources", len(sources)),
		slog.Int("rows", rows.Len()))

	a, err := r.newArena(c, plan, rows)
	if err != nil {
		return err
	}
	for i, src := range sources {
		var matched []any
		if valid[i] {
			for _, idx := range a.index[keys[i]] {
				rec, err := a.take(idx)
				if err != nil {
					return err
				}
				matched = append(matched, rec)
				if !r.kind.Poly() {
					break
				}
			}
		}
		r.field(src).Set(r.value(matched))
	}
	r.markReadonly(a.attached)

	nested := append(append([]string{}, r.scope.include...), includes...)
	return preload(ctx, sess, a.attached, nested)
}

// arena 预加载查询出来的目标数据, 同一条目标记录(按照主键)只构造一个原始实例.
// used 记录已经分配出去的原始实例, 再次分配的时候用同一行数据重新构造一个副本
type arena struct {
	c       core
	r       *Relation
	columns []string
	rows    [][]any
	// identities 每一行对应的目标记录的标识, 有主键就是主键, 否则是行号
	identities []string
	originals  map[string]any
	index      map[string][]int
	used       map[string]struct{}
	attached   []any
}

func (r *Relation) newArena(c core, plan *loadPlan, rows *Rows) (*arena, error) {
	matchCols := make([]string, len(plan.condCols))
	for i, col := range plan.condCols {
		if plan.join != "" {
			matchCols[i] = throughKeyAlias + strconv.Itoa(i)
		} else {
			matchCols[i] = col
		}
	}
	// 列名忽略大小写, Oracle 返回的是大写
	pos := make(map[string]int, len(rows.Columns))
	for i, col := range rows.Columns {
		pos[strings.ToLower(col)] = i
	}
	matchIdx := make([]int, len(matchCols))
	for i, col := range matchCols {
		idx, ok := pos[strings.ToLower(col)]
		if !ok {
			return nil, r.errorf("查询结果里面没有用于匹配的列 %s", col)
		}
		matchIdx[i] = idx
	}

	// 额外查出来的列不能交给记录工厂
	keep := make([]int, 0, len(rows.Columns))
	columns := make([]string, 0, len(rows.Columns))
	for i, col := range rows.Columns {
		if strings.HasPrefix(strings.ToLower(col), throughKeyAlias) {
			continue
		}
		keep = append(keep, i)
		columns = append(columns, col)
	}
	var pkIdx []int
	for _, pk := range r.targetModel.PrimaryKeys {
		idx, ok := pos[strings.ToLower(pk)]
		if !ok {
			pkIdx = nil
			break
		}
		pkIdx = append(pkIdx, idx)
	}

	a := &arena{
		c:          c,
		r:          r,
		columns:    columns,
		rows:       make([][]any, 0, rows.Len()),
		identities: make([]string, 0, rows.Len()),
		originals:  make(map[string]any, rows.Len()),
		index:      make(map[string][]int, rows.Len()),
		used:       make(map[string]struct{}, rows.Len()),
	}
	for i, vals := range rows.Values {
		key, _ := keyOf(pick(vals, matchIdx))
		a.index[key] = append(a.index[key], i)

		id := "#" + strconv.Itoa(i)
		if len(pkIdx) > 0 {
			if pk, ok := keyOf(pick(vals, pkIdx)); ok {
				id = pk
			}
		}
		a.identities = append(a.identities, id)
		a.rows = append(a.rows, pick(vals, keep))
		if _, ok := a.originals[id]; ok {
			continue
		}
		rec, err := c.newRecord(r.targetModel, a.columns, a.rows[i])
		if err != nil {
			return nil, err
		}
		a.originals[id] = rec
	}
	return a, nil
}

// take 第一次分配的是原始实例, 之后分配的都是用同一行数据新构造的副本
func (a *arena) take(idx int) (any, error) {
	id := a.identities[idx]
	rec := a.originals[id]
	if _, used := a.used[id]; used {
		var err error
		rec, err = a.c.newRecord(a.r.targetModel, a.columns, a.rows[idx])
		if err != nil {
			return nil, err
		}
	}
	a.used[id] = struct{}{}
	a.attached = append(a.attached, rec)
	return rec, nil
}

func pick(vals []any, idx []int) []any {
	res := make([]any, 0, len(idx))
	for _, i := range idx {
		res = append(res, vals[i])
	}
	return res
}

// statement 加载关联的查询, 还没有加上条件
func (r *Relation) statement(c core, plan *loadPlan, eager bool) (*SQLBuilder, error) {
	tm := r.targetModel
	sb := NewSQLBuilder(c.dialect, tm.TableName)
	joins := make([]string, 0, len(r.scope.joins)+1)
	if plan.join != "" {
		joins = append(joins, plan.join)
	}
	joins = append(joins, r.scope.joins...)

	sel := r.scope.sel
	if sel == "" {
		sel = "*"
		if len(joins) > 0 {
			sel = c.dialect.QuoteName(tm.TableName) + ".*"
		}
	}
	if eager && plan.join != "" {
		for i, col := range plan.condCols {
			sel += ", " + c.dialect.QuoteName(col) + " AS " + throughKeyAlias + strconv.Itoa(i)
		}
	}
	sb.Select(sel).Joins(joins...)
	if r.scope.order != "" {
		sb.Order(r.scope.order)
	}
	if r.scope.group != "" {
		sb.Group(r.scope.group)
	}
	if r.scope.having != "" {
		sb.Having(r.scope.having)
	}
	return sb, nil
}

func (r *Relation) applyScope(c core, sb *SQLBuilder) error {
	table := ""
	if len(sb.joins) > 0 {
		table = r.targetModel.TableName
	}
	for _, cond := range r.scope.conditions {
		args, err := resolveWhere(c, r.targetModel, table, cond)
		if err != nil {
			return err
		}
		sb.Where(args...)
	}
	return nil
}

// keysCondition 单列键是 col IN(?), 复合键是 (a=? AND b=?) OR (...)
func (r *Relation) keysCondition(sb *SQLBuilder, cols []string, tuples [][]any) Condition {
	if len(cols) == 1 {
		vals := make([]any, 0, len(tuples))
		for _, t := range tuples {
			vals = append(vals, t[0])
		}
		return sb.fromHash(Hash{{Column: cols[0], Value: vals}})
	}
	parts := make([]string, 0, len(tuples))
	raw := make([]any, 0, len(tuples)*len(cols))
	for _, t := range tuples {
		h := make(Hash, 0, len(cols))
		for i, col := range cols {
			h = append(h, Pair{Column: col, Value: t[i]})
		}
		c := sb.fromHash(h)
		parts = append(parts, "("+c.SQL+")")
		raw = append(raw, c.rawArgs()...)
	}
	return Condition{
		SQL:  strings.Join(parts, " "+ConnectiveOr+" "),
		Args: flatten(raw),
		raw:  raw,
	}
}

func (r *Relation) ownerValues(c core, source any, cols []string) ([]any, error) {
	v := c.creator(r.owner, source)
	vals := make([]any, 0, len(cols))
	for _, col := range cols {
		fd, ok := r.owner.ColumnMap[col]
		if !ok {
			return nil, r.errorf("%s 上没有列 %s", r.owner.Name, col)
		}
		val, err := v.Field(fd.GoName)
		if err != nil {
			return nil, err
		}
		vals = append(vals, val)
	}
	return vals, nil
}

func (r *Relation) checkBound(c core, source any) error {
	if r.owner == nil {
		// 没有通过注册中心拿到的关联, 比如直接调用 BelongsTo[T](...).Load
		m, err := c.modelOf(source)
		if err != nil {
			return err
		}
		if err = r.bind(c, m); err != nil {
			return err
		}
	}
	typ := reflect.TypeOf(source)
	if typ != reflect.PointerTo(r.owner.Type) {
		return r.errorf("源记录应该是 *%s, 实际是 %v", r.owner.Type.Name(), typ)
	}
	if reflect.ValueOf(source).IsNil() {
		return errs.ErrPointerOnly
	}
	return nil
}

func (r *Relation) field(source any) reflect.Value {
	return reflect.ValueOf(source).Elem().FieldByIndex(r.fieldIndex)
}

// empty 没有关联数据的时候的值: (*T)(nil) 或者 []*T{}
func (r *Relation) empty() any {
	return r.value(nil).Interface()
}

func (r *Relation) value(records []any) reflect.Value {
	ptr := reflect.PointerTo(r.target)
	if !r.kind.Poly() {
		if len(records) == 0 {
			return reflect.Zero(ptr)
		}
		return reflect.ValueOf(records[0])
	}
	res := reflect.MakeSlice(reflect.SliceOf(ptr), 0, len(records))
	for _, rec := range records {
		res = reflect.Append(res, reflect.ValueOf(rec))
	}
	return res
}

func (r *Relation) markReadonly(records []any) {
	if !r.scope.readonly {
		return
	}
	for _, rec := range records {
		if rs, ok := rec.(ReadonlySetter); ok {
			rs.SetReadonly(true)
		}
	}
}

// Preload 预加载 records 上的关联, includes 支持用 . 表示嵌套, 比如 "Books.Reviews".
// records 必须是同一种类型的指针
func Preload(ctx context.Context, sess Session, records []any, includes ...string) error {
	return preload(ctx, sess, records, includes)
}

func preload(ctx context.Context, sess Session, records []any, includes []string) error {
	if len(records) == 0 || len(includes) == 0 {
		return nil
	}
	c := sess.getCore()
	// 按照第一段分组, 保持声明的顺序
	var names []string
	nested := make(map[string][]string, len(includes))
	for _, inc := range includes {
		name, rest, _ := strings.Cut(inc, ".")
		if name == "" {
			continue
		}
		if _, ok := nested[name]; !ok {
			names = append(names, name)
			nested[name] = nil
		}
		if rest != "" {
			nested[name] = append(nested[name], rest)
		}
	}
	for _, name := range names {
		rel, err := relationOf(c, records[0], name)
		if err != nil {
			return err
		}
		if err = rel.LoadEagerly(ctx, sess, records, nested[name]); err != nil {
			return err
		}
	}
	return nil
}
