package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	commandWithArgumentsTemplateConstant    = "%s %s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	flagPrefixConstant                      = "-"
	revisionPathSeparatorConstant           = ":"
	nullSeparatorConstant                   = "\x00"
	lineSeparatorConstant                   = "\n"
)

const (
	gitConfigurationFlagConstant      = "-c"
	gitRevParseSubcommandNameConstant = "rev-parse"
	gitDiffSubcommandNameConstant     = "diff"
	gitShowSubcommandNameConstant     = "show"
	gitLSTreeSubcommandNameConstant   = "ls-tree"
	gitMergeBaseSubcommandConstant    = "merge-base"
	gitCommitSuffixConstant           = "^{commit}"
)

const (
	gitRevisionStartTemplateConstant             = "Resolving %s in %s"
	gitRevisionSuccessTemplateConstant           = "%s in %s resolved to %s"
	gitRevisionFailureTemplateConstant           = "Failed to resolve %s in %s (exit code %d%s)"
	gitRevisionExecutionFailureTemplateConstant  = "Unable to resolve %s in %s: %s"
	gitDiffStartTemplateConstant                 = "Comparing %s with %s in %s"
	gitDiffSuccessTemplateConstant               = "Compared %s with %s in %s"
	gitDiffFailureTemplateConstant               = "Failed to compare %s with %s in %s (exit code %d%s)"
	gitDiffExecutionFailureTemplateConstant      = "Unable to compare %s with %s in %s: %s"
	gitShowStartTemplateConstant                 = "Reading %s at %s in %s"
	gitShowSuccessTemplateConstant               = "Read %s at %s in %s"
	gitShowFailureTemplateConstant               = "Failed to read %s at %s in %s (exit code %d%s)"
	gitShowExecutionFailureTemplateConstant      = "Unable to read %s at %s in %s: %s"
	gitLSTreeStartTemplateConstant               = "Listing files at %s in %s"
	gitLSTreeSuccessTemplateConstant             = "Listed %d files at %s in %s"
	gitLSTreeFailureTemplateConstant             = "Failed to list files at %s in %s (exit code %d%s)"
	gitLSTreeExecutionFailureTemplateConstant    = "Unable to list files at %s in %s: %s"
	gitMergeBaseStartTemplateConstant            = "Finding common ancestor of %s and %s in %s"
	gitMergeBaseSuccessTemplateConstant          = "Common ancestor of %s and %s in %s is %s"
	gitMergeBaseFailureTemplateConstant          = "Failed to find common ancestor of %s and %s in %s (exit code %d%s)"
	gitMergeBaseExecutionFailureTemplateConstant = "Unable to find common ancestor of %s and %s in %s: %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	switch command.Name {
	case CommandGit:
		return formatter.describeGitMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	subcommand, arguments := splitGitSubcommand(command.Details.Arguments)
	switch subcommand {
	case gitRevParseSubcommandNameConstant:
		return formatter.describeGitRevParseMessage(command, arguments, result, failure, stage)
	case gitDiffSubcommandNameConstant:
		return formatter.describeGitDiffMessage(command, arguments, result, failure, stage)
	case gitShowSubcommandNameConstant:
		return formatter.describeGitShowMessage(command, arguments, result, failure, stage)
	case gitLSTreeSubcommandNameConstant:
		return formatter.describeGitLSTreeMessage(command, arguments, result, failure, stage)
	case gitMergeBaseSubcommandConstant:
		return formatter.describeGitMergeBaseMessage(command, arguments, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitRevParseMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	reference := strings.TrimSuffix(formatter.lastNonFlagArgument(arguments), gitCommitSuffixConstant)

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitRevisionStartTemplateConstant, reference, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitRevisionSuccessTemplateConstant, reference, workingDirectory, formatter.ensureValue(result.StandardOutput))
	case messageStageFailure:
		return fmt.Sprintf(gitRevisionFailureTemplateConstant, reference, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitRevisionExecutionFailureTemplateConstant, reference, workingDirectory, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) describeGitDiffMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	references := formatter.nonFlagArguments(arguments)
	baseReference := formatter.ensureValue(formatter.argumentAtIndex(references, 0))
	targetReference := formatter.ensureValue(formatter.argumentAtIndex(references, 1))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitDiffStartTemplateConstant, baseReference, targetReference, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitDiffSuccessTemplateConstant, baseReference, targetReference, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitDiffFailureTemplateConstant, baseReference, targetReference, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitDiffExecutionFailureTemplateConstant, baseReference, targetReference, workingDirectory, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) describeGitShowMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	reference, filePath := formatter.splitRevisionPath(formatter.lastNonFlagArgument(arguments))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitShowStartTemplateConstant, filePath, reference, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitShowSuccessTemplateConstant, filePath, reference, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitShowFailureTemplateConstant, filePath, reference, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitShowExecutionFailureTemplateConstant, filePath, reference, workingDirectory, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) describeGitLSTreeMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	reference := formatter.ensureValue(formatter.lastNonFlagArgument(arguments))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitLSTreeStartTemplateConstant, reference, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitLSTreeSuccessTemplateConstant, countListedEntries(result.StandardOutput), reference, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitLSTreeFailureTemplateConstant, reference, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitLSTreeExecutionFailureTemplateConstant, reference, workingDirectory, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) describeGitMergeBaseMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	references := formatter.nonFlagArguments(arguments)
	baseReference := formatter.ensureValue(formatter.argumentAtIndex(references, 0))
	targetReference := formatter.ensureValue(formatter.argumentAtIndex(references, 1))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitMergeBaseStartTemplateConstant, baseReference, targetReference, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitMergeBaseSuccessTemplateConstant, baseReference, targetReference, workingDirectory, formatter.ensureValue(result.StandardOutput))
	case messageStageFailure:
		return fmt.Sprintf(gitMergeBaseFailureTemplateConstant, baseReference, targetReference, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitMergeBaseExecutionFailureTemplateConstant, baseReference, targetReference, workingDirectory, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandLabel := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLabel = fmt.Sprintf(commandWithArgumentsTemplateConstant, commandLabel, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index >= 0 && index < len(arguments) {
		return arguments[index]
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func (formatter CommandMessageFormatter) nonFlagArguments(arguments []string) []string {
	values := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, flagPrefixConstant) {
			continue
		}
		values = append(values, trimmed)
	}
	return values
}

func (formatter CommandMessageFormatter) lastNonFlagArgument(arguments []string) string {
	values := formatter.nonFlagArguments(arguments)
	if len(values) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return values[len(values)-1]
}

func (formatter CommandMessageFormatter) splitRevisionPath(argument string) (string, string) {
	reference, filePath, found := strings.Cut(argument, revisionPathSeparatorConstant)
	if !found {
		return formatter.ensureValue(argument), fallbackUnknownValueLabelConstant
	}
	return formatter.ensureValue(reference), formatter.ensureValue(filePath)
}

// splitGitSubcommand skips leading "-c key=value" pairs and returns the subcommand and its arguments.
func splitGitSubcommand(arguments []string) (string, []string) {
	for index := 0; index < len(arguments); index++ {
		argument := strings.TrimSpace(arguments[index])
		if argument == gitConfigurationFlagConstant {
			index++
			continue
		}
		if strings.HasPrefix(argument, flagPrefixConstant) {
			continue
		}
		return argument, arguments[index+1:]
	}
	return emptyStringConstant, nil
}

func countListedEntries(output string) int {
	separator := lineSeparatorConstant
	if strings.Contains(output, nullSeparatorConstant) {
		separator = nullSeparatorConstant
	}
	count := 0
	for _, entry := range strings.Split(output, separator) {
		if len(strings.TrimSpace(entry)) > 0 {
			count++
		}
	}
	return count
}
