package serializer

import (
	"encoding/json"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/Kushon/cat-api-deploy/pkg/release"
)

// SerializeManifests encodes a rendered manifest set the way kubectl
// would accept it: a multi-document YAML stream, or a JSON list.
func (w *Writer) SerializeManifests(manifests []release.Manifest) error {
	switch w.format {
	case FormatYAML:
		for i, m := range manifests {
			obj, err := withTypeMeta(m.Object)
			if err != nil {
				return err
			}
			data, err := sigsyaml.Marshal(obj)
			if err != nil {
				return fmt.Errorf("failed to serialize %s: %w", m.String(), err)
			}
			if i > 0 {
				if _, err := fmt.Fprintln(w.out, "---"); err != nil {
					return err
				}
			}
			if _, err := w.out.Write(data); err != nil {
				return err
			}
		}
		return nil

	case FormatJSON:
		objs := make([]runtime.Object, 0, len(manifests))
		for _, m := range manifests {
			obj, err := withTypeMeta(m.Object)
			if err != nil {
				return err
			}
			objs = append(objs, obj)
		}
		data, err := json.MarshalIndent(objs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize manifests to json: %w", err)
		}
		_, err = fmt.Fprintln(w.out, string(data))
		return err
	}

	return fmt.Errorf("unknown output format: %q", w.format)
}

// withTypeMeta returns a copy of obj with apiVersion and kind filled in
// from the client-go scheme, so the output is applyable as-is.
func withTypeMeta(obj runtime.Object) (runtime.Object, error) {
	kinds, _, err := scheme.Scheme.ObjectKinds(obj)
	if err != nil || len(kinds) == 0 {
		return nil, fmt.Errorf("failed to resolve object kind: %w", err)
	}
	out := obj.DeepCopyObject()
	out.GetObjectKind().SetGroupVersionKind(kinds[0])
	return out, nil
}
