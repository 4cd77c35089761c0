package inliner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/ir"
)

func TestUnboxArguments(t *testing.T) {
	tests := []struct {
		name     string
		formals  []ir.Type
		wantArgs []string
		want     []string
	}{
		{
			name:    "no parameters",
			formals: nil,
		},
		{
			name:     "int and String",
			formals:  []ir.Type{ir.Int, ir.StringType},
			wantArgs: []string{"$i0", "$r2"},
			want: []string{
				"$r0 = r0[0]",
				"$r1 = (java.lang.Integer) $r0",
				"$i0 = virtualinvoke $r1.<java.lang.Integer: int intValue()>()",
				"$r3 = r0[1]",
				"$r4 = (java.lang.String) $r3",
				"$r2 = $r4",
			},
		},
		{
			name:     "double",
			formals:  []ir.Type{ir.Double},
			wantArgs: []string{"$d0"},
			want: []string{
				"$r0 = r0[0]",
				"$r1 = (java.lang.Double) $r0",
				"$d0 = virtualinvoke $r1.<java.lang.Double: double doubleValue()>()",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := ir.NewBody()
			array := &ir.Local{Name: "r0", T: ir.ObjectArray}
			require.NoError(t, body.AddLocal(array))

			b := &builder{body: body}
			args := b.unboxArguments(array, tt.formals)

			var names []string
			for _, a := range args {
				names = append(names, a.String())
			}
			require.Equal(t, tt.wantArgs, names)

			var got []string
			for _, s := range b.seq {
				got = append(got, s.String())
			}
			require.Equal(t, tt.want, got)
		})
	}
}
