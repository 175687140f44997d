package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"drover/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural constraints on a loaded config: transport and
// report selectors against their closed sets, verbosity range, and every
// task carrying a command.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config field %s failed '%s' validation", first.Namespace(), first.Tag()),
				"Fix the named field in your .drover.yaml")
		}
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Config validation failed",
			"Fix your .drover.yaml")
	}

	// Group members must not themselves be group expressions.
	for name, members := range cfg.Groups {
		for _, m := range members {
			if len(m) > 0 && m[0] == '@' {
				return errors.New(errors.ErrConfig,
					fmt.Sprintf("Group '%s' contains nested group expression '%s'", name, m),
					"Groups expand to host names only; flatten nested groups.")
			}
		}
	}

	return nil
}
