package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/courtside/internal/federation"
	"github.com/mesh-intelligence/courtside/internal/form"
	"github.com/mesh-intelligence/courtside/internal/rest"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

func newCreateCmd(a *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "create <resource> --set field=value...",
		Short: "Validate and create a record",
		Long: `Create checks the fields against the resource's rules and, when they pass,
posts the record to the backend. Values that parse as JSON keep their type
(numbers, booleans, null); anything else is sent as a string.

Example:
  courtside create teams --set name=Cedevita --set city=Zagreb --set founded_year=1991`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: resourceArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := lookupResource(args[0])
			if err != nil {
				return err
			}
			values, _, err := parseSets(sets)
			if err != nil {
				return err
			}
			coll, err := a.collection(res, nil)
			if err != nil {
				return err
			}
			defer coll.Close()

			f := form.New(values, res.Schema, form.WithLogger(a.log))
			var created types.Record
			result := f.Submit(cmd.Context(), func(ctx context.Context, v types.Values) error {
				rec, err := coll.CreateItem(ctx, types.Record(v))
				created = rec
				return err
			})
			if err := submitError(cmd, res, "create", result); err != nil {
				return err
			}
			return a.printResult(cmd, created)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value to set (repeatable)")
	return cmd
}

// submitError maps a form submission outcome onto the CLI exit codes.
// Validation failures and 4xx responses are user errors.
func submitError(cmd *cobra.Command, res federation.Resource, op string, result form.SubmitResult) error {
	switch result.Status {
	case form.SubmitSucceeded:
		return nil
	case form.SubmitInvalid:
		fmt.Fprintf(cmd.ErrOrStderr(), "%s is invalid:\n", res.Name)
		printValidation(cmd.ErrOrStderr(), result.Errors)
		return userErrorf("%s %s: %d field(s) failed validation", op, res.Name, len(result.Errors))
	}
	status := rest.StatusCode(result.Err)
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return userErrorf("%s %s: %s", op, res.Name, rest.UserMessage(result.Err))
	}
	return sysErrorf("%s %s: %s", op, res.Name, rest.UserMessage(result.Err))
}

func (a *app) printResult(cmd *cobra.Command, rec types.Record) error {
	if a.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), rec)
	}
	printRecord(cmd.OutOrStdout(), rec)
	return nil
}
