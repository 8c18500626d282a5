package cache

// prefixKeyer namespaces every key of an inner Keyer.
type prefixKeyer struct {
	Keyer
	prefix string
}

func (k prefixKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.Keyer.HTTPKey(namespace, key)
}

func (k prefixKeyer) MappingKey(service, dataset string, ids []string) string {
	return k.prefix + k.Keyer.MappingKey(service, dataset, ids)
}

// NewScopedKeyer prefixes the keys of inner, or of the default keyer when
// inner is nil. The CLI scopes by BioMart mirror so that answers from
// different Ensembl releases never mix:
//
//	keyer := cache.NewScopedKeyer(nil, "useast.ensembl.org:")
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return prefixKeyer{Keyer: inner, prefix: prefix}
}
