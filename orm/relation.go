package orm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/startdusk/relorm/orm/internal/errs"
	"github.com/startdusk/relorm/orm/model"
)

type RelationKind int

const (
	KindBelongsTo RelationKind = iota + 1
	KindHasMany
	KindHasOne
	KindHasAndBelongsToMany
)

func (k RelationKind) String() string {
	switch k {
	case KindBelongsTo:
		return "BelongsTo"
	case KindHasMany:
		return "HasMany"
	case KindHasOne:
		return "HasOne"
	case KindHasAndBelongsToMany:
		return "HasAndBelongsToMany"
	}
	return fmt.Sprintf("RelationKind(%d)", int(k))
}

// Poly 一对多和多对多对应切片字段, 其余的对应指针字段
func (k RelationKind) Poly() bool {
	return k == KindHasMany || k == KindHasAndBelongsToMany
}

type relationState int

const (
	stateUnresolved relationState = iota
	// stateKeysResolved 外键和主键已经确定
	stateKeysResolved
	// stateLoaded 只有 through 关联会进入, JOIN 已经计算好并且缓存
	stateLoaded
)

// Associated 实体通过实现这个接口来声明关联关系.
// 每种类型只会调用一次, 结果按照类型缓存
type Associated interface {
	Associations() []*Relation
}

// Relation 描述一个关联关系, 用 BelongsTo, HasMany, HasOne, HasAndBelongsToMany 构造.
// 键在第一次使用的时候才推断, 之后一直复用
type Relation struct {
	attr   string
	kind   RelationKind
	target reflect.Type

	foreignKey      []string
	primaryKey      []string
	through         string
	source          string
	joinTable       string
	assocForeignKey []string
	scope           relationScope

	// 构造的时候发现的问题, 注册的时候报出来
	invalid string

	// 注册的时候绑定
	owner       *model.Model
	targetModel *model.Model
	fieldIndex  []int

	mu    sync.Mutex
	state relationState
	plan  *loadPlan
}

// relationScope 加载关联时附加的查询选项
type relationScope struct {
	conditions [][]any
	joins      []string
	sel        string
	order      string
	group      string
	having     string
	limit      int
	offset     int
	readonly   bool
	include    []string
}

// loadPlan 加载一个关联需要的全部信息
type loadPlan struct {
	// join through 和多对多关联才有
	join string
	// ownerCols 源记录上取值的列
	ownerCols []string
	// condCols WHERE 里面和 ownerCols 一一对应的列, 有 JOIN 的时候带着表名
	condCols []string

	// through 关联经过的两个关联
	throughRel *Relation
	sourceRel  *Relation
}

type RelationOption func(r *Relation)

func WithForeignKey(cols ...string) RelationOption {
	return func(r *Relation) {
		r.foreignKey = cols
	}
}

func WithPrimaryKey(cols ...string) RelationOption {
	return func(r *Relation) {
		r.primaryKey = cols
	}
}

// WithThrough 经过当前模型上名为 name 的关联去加载
func WithThrough(name string) RelationOption {
	return func(r *Relation) {
		r.through = name
	}
}

// WithSource 中间模型上指向目标的关联名, 默认是关联名本身, 其次是它的单数形式
func WithSource(name string) RelationOption {
	return func(r *Relation) {
		r.source = name
	}
}

func WithJoinTable(table string) RelationOption {
	return func(r *Relation) {
		r.joinTable = table
	}
}

// WithAssociationForeignKey 多对多关联中, 中间表里面指向目标表的列
func WithAssociationForeignKey(cols ...string) RelationOption {
	return func(r *Relation) {
		r.assocForeignKey = cols
	}
}

// WithConditions 写法和 Selector.Where 一样
func WithConditions(args ...any) RelationOption {
	return func(r *Relation) {
		r.scope.conditions = append(r.scope.conditions, args)
	}
}

func WithJoins(joins ...string) RelationOption {
	return func(r *Relation) {
		r.scope.joins = append(r.scope.joins, joins...)
	}
}

func WithSelect(sel string) RelationOption {
	return func(r *Relation) {
		r.scope.sel = sel
	}
}

func WithOrder(order string) RelationOption {
	return func(r *Relation) {
		r.scope.order = order
	}
}

func WithGroup(group string) RelationOption {
	return func(r *Relation) {
		r.scope.group = group
	}
}

func WithHaving(having string) RelationOption {
	return func(r *Relation) {
		r.scope.having = having
	}
}

// WithLimit 和 WithOffset 只对懒加载生效, 预加载是一条语句查所有源记录的数据
func WithLimit(limit int) RelationOption {
	return func(r *Relation) {
		r.scope.limit = limit
	}
}

func WithOffset(offset int) RelationOption {
	return func(r *Relation) {
		r.scope.offset = offset
	}
}

// WithReadonly 加载出来的记录如果实现了 ReadonlySetter 就会被标记为只读
func WithReadonly() RelationOption {
	return func(r *Relation) {
		r.scope.readonly = true
	}
}

// WithInclude 加载这个关联的时候顺带预加载目标上的关联
func WithInclude(includes ...string) RelationOption {
	return func(r *Relation) {
		r.scope.include = append(r.scope.include, includes...)
	}
}

// BelongsTo 外键在当前表上, 字段类型是 *T
func BelongsTo[T any](attr string, opts ...RelationOption) *Relation {
	return newRelation[T](KindBelongsTo, attr, opts)
}

// HasMany 外键在目标表上, 字段类型是 []*T
func HasMany[T any](attr string, opts ...RelationOption) *Relation {
	return newRelation[T](KindHasMany, attr, opts)
}

// HasOne 外键在目标表上, 字段类型是 *T
func HasOne[T any](attr string, opts ...RelationOption) *Relation {
	return newRelation[T](KindHasOne, attr, opts)
}

// HasAndBelongsToMany 通过中间表关联, 字段类型是 []*T
func HasAndBelongsToMany[T any](attr string, opts ...RelationOption) *Relation {
	return newRelation[T](KindHasAndBelongsToMany, attr, opts)
}

func newRelation[T any](kind RelationKind, attr string, opts []RelationOption) *Relation {
	r := &Relation{
		attr:   attr,
		kind:   kind,
		target: reflect.TypeOf((*T)(nil)).Elem(),
	}
	for _, opt := range opts {
		opt(r)
	}
	switch {
	case attr == "":
		r.invalid = "关联名不能为空"
	case r.target.Kind() != reflect.Struct:
		r.invalid = fmt.Sprintf("关联的目标必须是结构体, 实际是 %s", r.target)
	case r.through != "" && kind != KindHasMany && kind != KindHasOne:
		r.invalid = fmt.Sprintf("%s 不支持 through", kind)
	}
	return r
}

func (r *Relation) Name() string {
	return r.attr
}

func (r *Relation) Kind() RelationKind {
	return r.kind
}

// Target 目标结构体的类型
func (r *Relation) Target() reflect.Type {
	return r.target
}

func (r *Relation) Through() string {
	return r.through
}

// ForeignKey 还没有推断的时候返回用户指定的值
func (r *Relation) ForeignKey() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.foreignKey
}

func (r *Relation) PrimaryKey() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primaryKey
}

func (r *Relation) ownerName() string {
	if r.owner == nil {
		return ""
	}
	return r.owner.Name
}

func (r *Relation) errorf(format string, args ...any) error {
	return errs.NewErrRelation(r.ownerName(), r.attr, format, args...)
}

// bind 注册的时候校验字段, 绑定源模型和目标模型
func (r *Relation) bind(c core, owner *model.Model) error {
	r.owner = owner
	if r.invalid != "" {
		return r.errorf("%s", r.invalid)
	}
	fd, ok := owner.Type.FieldByName(r.attr)
	if !ok {
		return r.errorf("结构体上没有字段 %s", r.attr)
	}
	want := reflect.PointerTo(r.target)
	if r.kind.Poly() {
		want = reflect.SliceOf(want)
	}
	if fd.Type != want {
		return r.errorf("字段类型应该是 %s, 实际是 %s", want, fd.Type)
	}
	tm, err := c.modelOf(r.target)
	if err != nil {
		return r.errorf("目标不是合法的模型: %v", err)
	}
	r.targetModel = tm
	r.fieldIndex = fd.Index
	return nil
}

// resolveKeys 推断外键和主键, 只会执行一次
func (r *Relation) resolveKeys() error {
	if r.state != stateUnresolved {
		return nil
	}
	owner, target := r.owner, r.targetModel
	var err error
	switch r.kind {
	case KindBelongsTo:
		if len(r.foreignKey) == 0 {
			r.foreignKey = []string{inflect.ForeignKey(target.Name)}
		}
		if len(r.primaryKey) == 0 {
			r.primaryKey = target.PrimaryKeys
		}
		if r.foreignKey, err = r.columns(owner, r.foreignKey); err != nil {
			return err
		}
		if r.primaryKey, err = r.columns(target, r.primaryKey); err != nil {
			return err
		}
	case KindHasMany, KindHasOne:
		if len(r.foreignKey) == 0 {
			r.foreignKey = []string{inflect.ForeignKey(owner.Name)}
		}
		if len(r.primaryKey) == 0 {
			r.primaryKey = owner.PrimaryKeys
		}
		if r.through == "" {
			if r.foreignKey, err = r.columns(target, r.foreignKey); err != nil {
				return err
			}
		}
		if r.primaryKey, err = r.columns(owner, r.primaryKey); err != nil {
			return err
		}
	case KindHasAndBelongsToMany:
		if len(r.foreignKey) == 0 {
			r.foreignKey = []string{inflect.ForeignKey(owner.Name)}
		}
		if len(r.assocForeignKey) == 0 {
			r.assocForeignKey = []string{inflect.ForeignKey(target.Name)}
		}
		if len(r.primaryKey) == 0 {
			r.primaryKey = owner.PrimaryKeys
		}
		if r.joinTable == "" {
			tables := []string{owner.TableName, target.TableName}
			sort.Strings(tables)
			r.joinTable = strings.Join(tables, "_")
		}
		if r.primaryKey, err = r.columns(owner, r.primaryKey); err != nil {
			return err
		}
		if len(target.PrimaryKeys) != len(r.assocForeignKey) {
			return r.errorf("中间表的列 %v 和目标主键 %v 数量不一致", r.assocForeignKey, target.PrimaryKeys)
		}
	}
	if len(r.primaryKey) == 0 {
		return r.errorf("%v", errs.ErrNoPrimaryKey)
	}
	if len(r.primaryKey) != len(r.foreignKey) {
		return r.errorf("外键 %v 和主键 %v 数量不一致", r.foreignKey, r.primaryKey)
	}
	if r.through == "" {
		r.plan = r.directPlan()
	}
	r.state = stateKeysResolved
	return nil
}

// columns 把 Go 字段名或者别名统一成列名
func (r *Relation) columns(m *model.Model, names []string) ([]string, error) {
	res := make([]string, 0, len(names))
	for _, name := range names {
		col, ok := m.ColumnFor(name)
		if !ok {
			return nil, r.errorf("%s 上没有列 %s", m.Name, name)
		}
		res = append(res, col)
	}
	return res, nil
}

func (r *Relation) directPlan() *loadPlan {
	switch r.kind {
	case KindBelongsTo:
		return &loadPlan{ownerCols: r.foreignKey, condCols: r.primaryKey}
	case KindHasAndBelongsToMany:
		return &loadPlan{
			join:      "", // 需要方言, 在 prepare 里面补上
			ownerCols: r.primaryKey,
			condCols:  qualify(r.joinTable, r.foreignKey),
		}
	default:
		return &loadPlan{ownerCols: r.primaryKey, condCols: r.foreignKey}
	}
}

// prepare 保证键已经推断好, through 关联的 JOIN 已经计算好
func (r *Relation) prepare(c core) (*loadPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.resolveKeys(); err != nil {
		return nil, err
	}
	if r.kind == KindHasAndBelongsToMany && r.plan.join == "" {
		r.plan.join = "INNER JOIN " + c.dialect.QuoteName(r.joinTable) + " ON" +
			onClause(c.dialect, r.targetModel.TableName, r.targetModel.PrimaryKeys, r.joinTable, r.assocForeignKey)
	}
	if r.through != "" && r.state != stateLoaded {
		plan, err := r.throughPlan(c)
		if err != nil {
			return nil, err
		}
		r.plan = plan
		r.state = stateLoaded
	}
	return r.plan, nil
}

// throughPlan 源模型 -(through)-> 中间模型 -(source)-> 目标模型
func (r *Relation) throughPlan(c core) (*loadPlan, error) {
	ownerRels, err := c.rels.get(c, r.owner)
	if err != nil {
		return nil, err
	}
	tr, ok := ownerRels[r.through]
	if !ok {
		return nil, r.errorf("through 指定的关联 %s 不存在", r.through)
	}
	if tr == r || (tr.kind != KindBelongsTo && tr.kind != KindHasMany) {
		return nil, r.errorf("through 指定的关联 %s 必须是 BelongsTo 或者 HasMany, 实际是 %s", r.through, tr.kind)
	}
	if tr.through != "" {
		return nil, r.errorf("不支持嵌套的 through 关联, %s 本身也是 through 关联", r.through)
	}
	if err = tr.lockedResolveKeys(); err != nil {
		return nil, err
	}
	mid := tr.targetModel
	midRels, err := c.rels.get(c, mid)
	if err != nil {
		return nil, err
	}
	var sr *Relation
	for _, name := range r.sourceNames() {
		if sr, ok = midRels[name]; ok {
			break
		}
	}
	if sr == r {
		return nil, r.errorf("through 关联不能指向自己")
	}
	if sr == nil {
		return nil, r.errorf("%s 上找不到指向 %s 的关联", mid.Name, r.targetModel.Name)
	}
	if sr.target != r.target {
		return nil, r.errorf("%s.%s 指向的是 %s, 不是 %s", mid.Name, sr.attr, sr.target.Name(), r.target.Name())
	}
	if err = sr.lockedResolveKeys(); err != nil {
		return nil, err
	}

	d := c.dialect
	tg := r.targetModel.TableName
	plan := &loadPlan{throughRel: tr, sourceRel: sr}
	switch sr.kind {
	case KindBelongsTo:
		plan.join = "INNER JOIN " + d.QuoteName(mid.TableName) + " ON" +
			onClause(d, tg, sr.primaryKey, mid.TableName, sr.foreignKey)
	case KindHasMany, KindHasOne:
		if sr.through != "" {
			return nil, r.errorf("不支持嵌套的 through 关联 %s.%s", mid.Name, sr.attr)
		}
		plan.join = "INNER JOIN " + d.QuoteName(mid.TableName) + " ON" +
			onClause(d, tg, sr.foreignKey, mid.TableName, sr.primaryKey)
	default:
		return nil, r.errorf("through 的源关联 %s.%s 不支持 %s", mid.Name, sr.attr, sr.kind)
	}
	if tr.kind == KindHasMany {
		plan.ownerCols = tr.primaryKey
		plan.condCols = qualify(mid.TableName, tr.foreignKey)
	} else {
		plan.ownerCols = tr.foreignKey
		plan.condCols = qualify(mid.TableName, tr.primaryKey)
	}
	return plan, nil
}

func (r *Relation) lockedResolveKeys() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveKeys()
}

func (r *Relation) sourceNames() []string {
	if r.source != "" {
		return []string{r.source}
	}
	return []string{r.attr, inflect.Singularize(r.attr)}
}

// joinSQL 从源表 JOIN 到目标表, 用于 Selector.Joins("关联名")
func (r *Relation) joinSQL(c core) (string, error) {
	plan, err := r.prepare(c)
	if err != nil {
		return "", err
	}
	d := c.dialect
	owner, tg := r.owner.TableName, r.targetModel.TableName
	switch {
	case r.through != "":
		first, err := plan.throughRel.joinSQL(c)
		if err != nil {
			return "", err
		}
		second, err := plan.sourceRel.joinSQL(c)
		if err != nil {
			return "", err
		}
		return first + " " + second, nil
	case r.kind == KindBelongsTo:
		return "INNER JOIN " + d.QuoteName(tg) + " ON" +
			onClause(d, owner, r.foreignKey, tg, r.primaryKey), nil
	case r.kind == KindHasAndBelongsToMany:
		return "INNER JOIN " + d.QuoteName(r.joinTable) + " ON" +
			onClause(d, owner, r.primaryKey, r.joinTable, r.foreignKey) +
			" INNER JOIN " + d.QuoteName(tg) + " ON" +
			onClause(d, r.joinTable, r.assocForeignKey, tg, r.targetModel.PrimaryKeys), nil
	default:
		return "INNER JOIN " + d.QuoteName(tg) + " ON" +
			onClause(d, owner, r.primaryKey, tg, r.foreignKey), nil
	}
}

// onClause (l.a = r.x AND l.b = r.y)
func onClause(d Dialect, left string, leftCols []string, right string, rightCols []string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := range leftCols {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(d.QuoteName(left + "." + leftCols[i]))
		sb.WriteString(" = ")
		sb.WriteString(d.QuoteName(right + "." + rightCols[i]))
	}
	sb.WriteByte(')')
	return sb.String()
}

func qualify(table string, cols []string) []string {
	res := make([]string, 0, len(cols))
	for _, col := range cols {
		res = append(res, table+"."+col)
	}
	return res
}

// relationRegistry 按照类型缓存关联关系, 写法和 model.Registry 一样
type relationRegistry struct {
	relations map[reflect.Type]map[string]*Relation
	lock      sync.RWMutex
}

func newRelationRegistry() *relationRegistry {
	return &relationRegistry{
		relations: make(map[reflect.Type]map[string]*Relation, 16),
	}
}

func (r *relationRegistry) get(c core, m *model.Model) (map[string]*Relation, error) {
	r.lock.RLock()
	rels, ok := r.relations[m.Type]
	r.lock.RUnlock()
	if ok {
		return rels, nil
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	// double check
	rels, ok = r.relations[m.Type]
	if ok {
		return rels, nil
	}
	rels = make(map[string]*Relation)
	if a, ok := reflect.New(m.Type).Interface().(Associated); ok {
		for _, rel := range a.Associations() {
			if rel == nil {
				continue
			}
			if _, dup := rels[rel.attr]; dup {
				return nil, errs.NewErrRelation(m.Name, rel.attr, "关联重复声明")
			}
			if err := rel.bind(c, m); err != nil {
				return nil, err
			}
			rels[rel.attr] = rel
		}
	}
	r.relations[m.Type] = rels
	return rels, nil
}

// relationOf 找到 entity 上名为 attr 的关联
func relationOf(c core, entity any, attr string) (*Relation, error) {
	m, err := c.modelOf(entity)
	if err != nil {
		return nil, err
	}
	rels, err := c.rels.get(c, m)
	if err != nil {
		return nil, err
	}
	rel, ok := rels[attr]
	if !ok {
		return nil, errs.NewErrUnknownRelation(m.Name, attr)
	}
	return rel, nil
}

// Relations 返回 entity 类型上声明的全部关联
func Relations(sess Session, entity any) (map[string]*Relation, error) {
	c := sess.getCore()
	m, err := c.modelOf(entity)
	if err != nil {
		return nil, err
	}
	return c.rels.get(c, m)
}
